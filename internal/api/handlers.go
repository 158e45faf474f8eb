package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/symptom-checker-server/internal/domain"
	"github.com/symptom-checker-server/internal/middleware"
	"github.com/symptom-checker-server/internal/service"
)

// analyzeRequest is the JSON body of /analyze. Image, when set, is a data URI.
type analyzeRequest struct {
	Form  domain.RawForm `json:"form"`
	Image string         `json:"image,omitempty"`
}

// imageCheckResponse describes an accepted image.
type imageCheckResponse struct {
	*domain.AcceptedImage
	Preview string `json:"preview,omitempty"`
}

// handleValidate runs schema validation only. With ?field= only that field is checked
// and the response is always 200.
func (s *Server) handleValidate(c *gin.Context) {
	var raw domain.RawForm
	if err := c.ShouldBindJSON(&raw); err != nil {
		s.badRequest(c, "Invalid form body", err)
		return
	}

	if field := c.Query("field"); field != "" {
		errs := s.analyzer.Validator().ValidateField(raw, field)
		c.JSON(http.StatusOK, gin.H{
			"field":  field,
			"valid":  len(errs) == 0,
			"errors": errs.ByField(),
		})
		return
	}

	if _, errs := s.analyzer.Validator().Validate(raw); len(errs) > 0 {
		s.writeError(c, errs)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "errors": map[string][]string{}})
}

// handleImageCheck runs image intake on a multipart upload. ?preview=true also returns
// the data URI preview.
func (s *Server) handleImageCheck(c *gin.Context) {
	file, err := imageFromRequest(c)
	if err != nil {
		s.badRequest(c, "Invalid multipart body", err)
		return
	}
	if file == nil {
		s.badRequest(c, "An image file is required in the \"image\" field", nil)
		return
	}

	accepted, err := s.analyzer.Images().Check(file)
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp := imageCheckResponse{AcceptedImage: accepted}
	if c.Query("preview") == "true" {
		preview, err := s.analyzer.Images().Preview(c.Request.Context(), accepted)
		if err != nil {
			s.writeError(c, err)
			return
		}
		resp.Preview = preview
	}
	c.JSON(http.StatusOK, resp)
}

// handleAnalyze runs one submission end to end. It accepts JSON (analyzeRequest) or a
// multipart body with the form as JSON in "form" and an optional "image" file.
func (s *Server) handleAnalyze(c *gin.Context) {
	req := service.AnalyzeRequest{RequestID: middleware.GetRequestID(c)}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := json.Unmarshal([]byte(c.PostForm("form")), &req.Form); err != nil {
			s.badRequest(c, "The \"form\" field must hold the form as JSON", err)
			return
		}
		file, err := imageFromRequest(c)
		if err != nil {
			s.badRequest(c, "Invalid multipart body", err)
			return
		}
		req.File = file
	} else {
		var body analyzeRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			s.badRequest(c, "Invalid analysis request body", err)
			return
		}
		req.Form = body.Form
		if body.Image != "" {
			mediaType, data, err := service.DecodeDataURI(body.Image)
			if err != nil {
				s.badRequest(c, "The image must be a base64 data URI", err)
				return
			}
			req.File = domain.NewBytesImage("upload", mediaType, data)
		}
	}

	result, err := s.analyzer.Analyze(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleRender turns a raw gateway response into the result view model.
func (s *Server) handleRender(c *gin.Context) {
	var output domain.AnalyzeSymptomsOutput
	if err := c.ShouldBindJSON(&output); err != nil {
		s.badRequest(c, "Invalid diagnoses body", err)
		return
	}
	result := s.analyzer.Renderer().Render(&output)

	if c.Query("format") == "text" {
		c.String(http.StatusOK, s.analyzer.Renderer().RenderText(result))
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleAuditSummary counts analyses by outcome, optionally since an RFC 3339 time.
func (s *Server) handleAuditSummary(c *gin.Context) {
	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.badRequest(c, "since must be an RFC 3339 timestamp", err)
			return
		}
		since = &t
	}

	summary, err := s.audit.Summary(c.Request.Context(), since)
	if err != nil {
		s.auditUnavailable(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// handleAuditRecords lists audit records newest first.
func (s *Server) handleAuditRecords(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		s.badRequest(c, "limit must be a number", err)
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		s.badRequest(c, "offset must be a number", err)
		return
	}

	records, err := s.audit.List(c.Request.Context(), limit, offset)
	if err != nil {
		s.auditUnavailable(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"limit":   limit,
		"offset":  offset,
	})
}

func (s *Server) auditUnavailable(c *gin.Context, err error) {
	_ = c.Error(err)
	s.logger.WithError(err).Error("Audit store query failed")
	c.JSON(http.StatusServiceUnavailable, domain.NewAPIError(
		domain.ErrDatabaseError, "Audit store unavailable", "", middleware.GetRequestID(c)))
}
