package handlers

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"strconv"
	"sync"

	"github.com/apk-analysis/droidcarve-go/internal/filter"
	"github.com/apk-analysis/droidcarve-go/internal/manifest"
	"github.com/apk-analysis/droidcarve-go/internal/packer"
	"github.com/apk-analysis/droidcarve-go/internal/query"
	"github.com/apk-analysis/droidcarve-go/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Inspector 处理器需要的会话操作
type Inspector interface {
	APKPath() string
	Rescan() error
	Find(pattern string) (iter.Seq[string], error)
	Statistics() (query.Statistics, error)
	Permissions() ([]string, error)
	Manifest() (string, error)
	Signatures(ctx context.Context) ([]session.SignatureResult, error)
	DetectPacker() (*packer.PackerInfo, error)
	AddExclusion(pattern string) error
	AddDefaultExclusions()
	ClearExclusions()
	Exclusions() []string
}

// SessionHandler 会话查询处理器，所有调用串行执行
type SessionHandler struct {
	mu      sync.Mutex
	session Inspector
	logger  *logrus.Logger
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(s Inspector, logger *logrus.Logger) *SessionHandler {
	return &SessionHandler{
		session: s,
		logger:  logger,
	}
}

// PermissionItem 权限及其分类
type PermissionItem struct {
	Name string        `json:"name"`
	Kind manifest.Kind `json:"kind"`
}

// SignatureItem 签名文件信息
type SignatureItem struct {
	File      string `json:"file"`
	Owner     string `json:"owner,omitempty"`
	Developer string `json:"developer,omitempty"`
	Company   string `json:"company,omitempty"`
	SHA256    string `json:"sha256,omitempty"`
	Error     string `json:"error,omitempty"`
}

// writeError 把领域错误映射为 HTTP 状态码
func (h *SessionHandler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, filter.ErrInvalidPattern):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrManifestNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrNotAnalyzed):
		status = http.StatusConflict
	default:
		h.logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// GetStats 统计信息
// GET /api/stats
func (h *SessionHandler) GetStats(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats, err := h.session.Statistics()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"apk":              h.session.APKPath(),
		"class_count":      stats.ClassCount,
		"permission_count": stats.PermissionCount,
		"exclusion_rules":  stats.ExclusionRules,
		"manifest_found":   stats.ManifestFound,
	})
}

// FindClasses 按前缀正则查找类
// GET /api/classes?pattern=Lcom/example&limit=100
func (h *SessionHandler) FindClasses(c *gin.Context) {
	pattern := c.Query("pattern")
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	seq, err := h.session.Find(pattern)
	if err != nil {
		h.writeError(c, err)
		return
	}

	classes := []string{}
	for descriptor := range seq {
		classes = append(classes, descriptor)
		if limit > 0 && len(classes) >= limit {
			break
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"pattern": pattern,
		"count":   len(classes),
		"classes": classes,
	})
}

// GetPermissions 权限列表
// GET /api/permissions
func (h *SessionHandler) GetPermissions(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	permissions, err := h.session.Permissions()
	if err != nil {
		h.writeError(c, err)
		return
	}

	items := make([]PermissionItem, 0, len(permissions))
	for _, p := range permissions {
		items = append(items, PermissionItem{Name: p, Kind: manifest.Classify(p)})
	}
	c.JSON(http.StatusOK, gin.H{
		"count":       len(items),
		"permissions": items,
	})
}

// GetManifest 解码后的 manifest
// GET /api/manifest
func (h *SessionHandler) GetManifest(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	text, err := h.session.Manifest()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(text))
}

// GetSignatures 签名证书
// GET /api/signatures
func (h *SessionHandler) GetSignatures(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	results, err := h.session.Signatures(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	items := make([]SignatureItem, 0, len(results))
	for _, r := range results {
		item := SignatureItem{File: r.File}
		if r.Err != nil {
			item.Error = r.Err.Error()
		}
		if r.Certificate != nil {
			item.Owner = r.Certificate.Owner
			item.Developer = r.Certificate.Developer
			item.Company = r.Certificate.Company
			item.SHA256 = r.Certificate.SHA256
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, gin.H{"signatures": items})
}

// GetPacker 加壳检测
// GET /api/packer
func (h *SessionHandler) GetPacker(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	info, err := h.session.DetectPacker()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// ListExclusions 排除规则
// GET /api/exclusions
func (h *SessionHandler) ListExclusions(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"exclusions": h.session.Exclusions()})
}

// AddExclusion 添加排除规则
// POST /api/exclusions {"pattern": "Landroid/"} 或 {"defaults": true}
func (h *SessionHandler) AddExclusion(c *gin.Context) {
	var req struct {
		Pattern  string `json:"pattern"`
		Defaults bool   `json:"defaults"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Pattern == "" && !req.Defaults {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pattern or defaults is required"})
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if req.Defaults {
		h.session.AddDefaultExclusions()
	}
	if req.Pattern != "" {
		if err := h.session.AddExclusion(req.Pattern); err != nil {
			h.writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusCreated, gin.H{"exclusions": h.session.Exclusions()})
}

// ClearExclusions 清空排除规则
// DELETE /api/exclusions
func (h *SessionHandler) ClearExclusions(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.session.ClearExclusions()
	c.JSON(http.StatusOK, gin.H{"exclusions": []string{}})
}

// Rescan 重新扫描缓存目录
// POST /api/rescan
func (h *SessionHandler) Rescan(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.session.Rescan(); err != nil {
		h.writeError(c, err)
		return
	}
	stats, err := h.session.Statistics()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"class_count":      stats.ClassCount,
		"permission_count": stats.PermissionCount,
		"manifest_found":   stats.ManifestFound,
	})
}
