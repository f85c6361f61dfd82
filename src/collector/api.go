package collector

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jom-io/gorig-telemetry/src/logger"
	"github.com/jom-io/gorig-telemetry/src/mid"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/rs/xid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const maxBody = 8 << 20

var errBadPayload = errors.New("bad payload")

func handlePanic(c *gin.Context) {
	if r := recover(); r != nil {
		logger.Error(c, "Collector handler panicked", zap.Any("panic", r))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func handleData(c *gin.Context, data any, err error) {
	switch {
	case errors.Is(err, errBadPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		logger.Error(c, "Collector request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, data)
	}
}

// Collect receives a gzip compressed payload.
func (s *Serv) Collect(c *gin.Context) {
	defer handlePanic(c)
	ctx := logger.WithTrace(c.Request.Context())

	sub, err := decode(c.Request)
	if err != nil {
		logger.Warn(ctx, "Rejected submission", zap.Error(err))
		handleData(c, nil, err)
		return
	}
	sub.Token = c.GetString(mid.TokenKey)
	s.Record(sub)
	logger.Info(ctx, "Received submission",
		zap.String("identifier", sub.Identifier), zap.Int("size", sub.Size), zap.Int64("errors", sub.Errors))

	if status := s.ForcedStatus(); status != 0 {
		c.JSON(status, gin.H{"id": sub.ID, "forced": status})
		return
	}
	handleData(c, gin.H{"id": sub.ID}, nil)
}

func decode(r *http.Request) (Submission, error) {
	compressed, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return Submission{}, errors.Wrap(err, "read body")
	}
	body := compressed
	if strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return Submission{}, errors.Wrap(errBadPayload, err.Error())
		}
		if body, err = io.ReadAll(io.LimitReader(zr, maxBody)); err != nil {
			return Submission{}, errors.Wrap(errBadPayload, err.Error())
		}
	}

	if !gjson.ValidBytes(body) {
		return Submission{}, errors.Wrap(errBadPayload, "invalid json")
	}
	identifier := gjson.GetBytes(body, "identifier").String()
	if _, err := uuid.Parse(identifier); err != nil {
		return Submission{}, errors.Wrapf(errBadPayload, "invalid identifier %q", identifier)
	}
	data := gjson.GetBytes(body, "data")
	if !data.IsObject() {
		return Submission{}, errors.Wrap(errBadPayload, "data must be an object")
	}
	return Submission{
		ID:         xid.New().String(),
		At:         time.Now().Unix(),
		Identifier: identifier,
		Size:       len(compressed),
		Errors:     data.Get("errors.#").Int(),
		Data:       json.RawMessage(data.Raw),
	}, nil
}

func (s *Serv) List(c *gin.Context) {
	defer handlePanic(c)
	handleData(c, s.Submissions(), nil)
}

func (s *Serv) Clear(c *gin.Context) {
	defer handlePanic(c)
	s.Reset()
	handleData(c, gin.H{"ok": true}, nil)
}

func (s *Serv) Status(c *gin.Context) {
	defer handlePanic(c)
	handleData(c, gin.H{"status": s.ForcedStatus(), "submissions": len(s.Submissions())}, nil)
}

func (s *Serv) SetStatus(c *gin.Context) {
	defer handlePanic(c)
	var req StatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		handleData(c, nil, errors.Wrap(errBadPayload, err.Error()))
		return
	}
	if req.Status != 0 && (req.Status < 100 || req.Status > 599) {
		handleData(c, nil, errors.Wrapf(errBadPayload, "status %d out of range", req.Status))
		return
	}
	s.ForceStatus(req.Status)
	handleData(c, req, nil)
}
