package handlers

import (
	"net/http"
	"strconv"

	"github.com/apk-analysis/droidcarve-go/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ReportHandler 分析报告处理器
type ReportHandler struct {
	repo   repository.ReportRepository
	logger *logrus.Logger
}

// NewReportHandler 创建报告处理器
func NewReportHandler(repo repository.ReportRepository, logger *logrus.Logger) *ReportHandler {
	return &ReportHandler{repo: repo, logger: logger}
}

// ListReports 分页查询报告
// GET /api/reports?page=1&page_size=20
func (h *ReportHandler) ListReports(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	reports, total, err := h.repo.List(c.Request.Context(), page, pageSize)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list reports")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reports"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":   total,
		"page":    page,
		"reports": reports,
	})
}

// GetReport 按 sha1 查询报告
// GET /api/reports/:sha1
func (h *ReportHandler) GetReport(c *gin.Context) {
	report, err := h.repo.FindBySHA1(c.Request.Context(), c.Param("sha1"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return
	}
	c.JSON(http.StatusOK, report)
}
