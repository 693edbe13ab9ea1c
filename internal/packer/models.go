package packer

// PackerInfo 壳检测结果
type PackerInfo struct {
	IsPacked   bool     `json:"is_packed"`   // 是否加壳
	PackerName string   `json:"packer_name"` // 壳名称
	PackerType string   `json:"packer_type"` // 壳类型: dex_encrypt/native/vmp/obfuscator
	Confidence float64  `json:"confidence"`  // 置信度 0-1
	Indicators []string `json:"indicators"`  // 检测到的特征
}

// PackerType 壳类型枚举
const (
	PackerTypeNative     = "native"      // 原生库加密
	PackerTypeDexEncrypt = "dex_encrypt" // DEX加密
	PackerTypeVMP        = "vmp"         // 虚拟机保护
	PackerTypeObfuscator = "obfuscator"  // 商业混淆
)

// PackerRule 壳检测规则
type PackerRule struct {
	Name       string   // 壳名称
	Type       string   // 壳类型
	NativeLibs []string // 特征Native库
	ClassNames []string // 特征类名（点分形式）
	Assets     []string // 特征资源路径片段
	Priority   int      // 优先级 (越大越优先匹配)
}

// Evidence 检测输入：反汇编类与解压文件
type Evidence struct {
	HasClass func(descriptor string) bool // 类描述符是否存在
	Files    []string                     // 解压后的相对路径
}
