package smali

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// ClassDirective smali 类声明关键字
const ClassDirective = ".class"

// maxLineSize 单行最大长度（超长行视为不可读文件）
const maxLineSize = 1024 * 1024

// ErrRootUnreadable 扫描根目录不可访问
var ErrRootUnreadable = errors.New("disassembly root unreadable")

// ClassRecord 单个反汇编类
type ClassRecord struct {
	Descriptor  string   `json:"descriptor"`   // Lcom/example/Foo;
	SourcePath  string   `json:"source_path"`  // smali 文件路径
	AccessFlags []string `json:"access_flags"` // public final abstract ...
}

// ClassIndex descriptor -> ClassRecord 映射，保留插入顺序
type ClassIndex struct {
	root    string
	records map[string]*ClassRecord
	order   []string
}

// Scanner 扫描反汇编输出目录
type Scanner struct {
	logger *logrus.Logger
}

// NewScanner 创建扫描器
func NewScanner(logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Scanner{logger: logger}
}

// Scan 遍历 root 下所有普通文件并建立类索引。
// 单个文件读取失败只会被跳过；root 本身不可读时返回错误。
func (s *Scanner) Scan(root string) (*ClassIndex, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRootUnreadable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRootUnreadable, root)
	}

	index := &ClassIndex{
		root:    root,
		records: make(map[string]*ClassRecord),
	}
	skipped := 0

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			s.logger.WithError(err).WithField("path", path).Debug("Skipping unreadable entry")
			skipped++
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		record, err := readClassRecord(path)
		if err != nil {
			s.logger.WithError(err).WithField("path", path).Debug("Skipping unreadable file")
			skipped++
			return nil
		}
		if record == nil {
			return nil
		}

		if existing, ok := index.records[record.Descriptor]; ok {
			s.logger.WithFields(logrus.Fields{
				"descriptor": record.Descriptor,
				"kept":       existing.SourcePath,
				"ignored":    path,
			}).Debug("Duplicate class descriptor")
			return nil
		}
		index.records[record.Descriptor] = record
		index.order = append(index.order, record.Descriptor)
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrRootUnreadable, walkErr)
	}

	s.logger.WithFields(logrus.Fields{
		"root":    root,
		"classes": index.Len(),
		"skipped": skipped,
	}).Info("Class index built")

	return index, nil
}

// readClassRecord 读取文件直到第一行 .class 声明。
// 没有声明或声明中没有 descriptor 时返回 nil, nil。
func readClassRecord(path string) (*ClassRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var scanErr error
	line, found := firstMatch(lines(f, &scanErr), isClassDeclaration)
	if !found {
		// 扫描器出错（如超长行）时文件按不可读处理
		return nil, scanErr
	}

	return parseClassDeclaration(line, path), nil
}

// lines 惰性逐行读取；读取错误写入 errp
func lines(r io.Reader, errp *error) iter.Seq[string] {
	return func(yield func(string) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			if !yield(scanner.Text()) {
				return
			}
		}
		*errp = scanner.Err()
	}
}

// firstMatch 返回序列中第一个满足 pred 的元素
func firstMatch(seq iter.Seq[string], pred func(string) bool) (string, bool) {
	for v := range seq {
		if pred(v) {
			return v, true
		}
	}
	return "", false
}

func isClassDeclaration(line string) bool {
	fields := strings.Fields(line)
	return len(fields) > 0 && fields[0] == ClassDirective
}

// parseClassDeclaration 从声明行提取 descriptor 与访问标志
func parseClassDeclaration(line, path string) *ClassRecord {
	fields := strings.Fields(line)
	for i, token := range fields {
		if IsDescriptor(token) {
			var flags []string
			if i > 1 {
				flags = append(flags, fields[1:i]...)
			}
			return &ClassRecord{
				Descriptor:  token,
				SourcePath:  path,
				AccessFlags: flags,
			}
		}
	}
	return nil
}

// IsDescriptor 判断 token 是否为类 descriptor（以 L 开头，以 ; 结尾）
func IsDescriptor(token string) bool {
	return len(token) >= 2 && strings.HasPrefix(token, "L") && strings.HasSuffix(token, ";")
}

// Root 扫描根目录
func (ci *ClassIndex) Root() string {
	return ci.root
}

// Len 类数量
func (ci *ClassIndex) Len() int {
	return len(ci.order)
}

// Get 按 descriptor 查询
func (ci *ClassIndex) Get(descriptor string) (*ClassRecord, bool) {
	record, ok := ci.records[descriptor]
	return record, ok
}

// Descriptors 按插入顺序遍历 descriptor
func (ci *ClassIndex) Descriptors() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, d := range ci.order {
			if !yield(d) {
				return
			}
		}
	}
}

// Records 按插入顺序返回所有记录
func (ci *ClassIndex) Records() []*ClassRecord {
	records := make([]*ClassRecord, 0, len(ci.order))
	for _, d := range ci.order {
		records = append(records, ci.records[d])
	}
	return records
}
