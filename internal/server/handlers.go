package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/bayesnet"
)

func (s *Server) health(c *gin.Context) {
	id, _, ok := s.session.Current()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "defined": ok, "session": id})
}

// define replaces the session's template. Any failure past decoding the
// body is a 500 and leaves the previous template in place.
func (s *Server) define(c *gin.Context) {
	var req defineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}

	id, err := s.defineTemplate(c, req)
	if s.metrics != nil {
		s.metrics.Defined(err == nil)
	}
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": "Done", "session": id})
}

func (s *Server) defineTemplate(c *gin.Context, req defineRequest) (string, error) {
	var tmpl *bayesnet.SerializedGraph
	if len(req.Template) > 0 && string(req.Template) != "null" {
		sg, err := bayesnet.Load(req.Template)
		if err != nil {
			return "", err
		}
		tmpl = sg
	}
	return s.session.Define(c.Request.Context(), rbn.DefineRequest{
		Template:            tmpl,
		Ranges:              req.FunctorRanges,
		Populations:         req.Populations.Populations(),
		VariablePopulations: req.VariablePopulations,
	})
}

func (s *Server) ground(c *gin.Context) {
	var req groundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}

	greq := rbn.GroundRequest{
		Populations: req.Populations.Populations(),
		PopVars:     req.PopVars,
	}
	if req.FunctorRanges != nil {
		greq.Ranges = *req.FunctorRanges
		if greq.Ranges == nil {
			greq.Ranges = rangeList{}
		}
	}

	res, err := s.session.Ground(c.Request.Context(), greq)
	if err != nil {
		s.fail(c, groundStatus(err), err)
		return
	}
	c.Header("X-Session-ID", res.Session)
	c.JSON(http.StatusOK, res.Graph)
}

func groundStatus(err error) int {
	switch {
	case errors.Is(err, rbn.ErrNoSession):
		return http.StatusConflict
	case errors.Is(err, rbn.ErrInvalidInput),
		errors.Is(err, rbn.ErrLookup),
		errors.Is(err, rbn.ErrIntegrity),
		errors.Is(err, rbn.ErrIncompatible):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, code int, err error) {
	s.logger.Warn("request failed",
		zap.String("path", c.FullPath()),
		zap.Int("code", code),
		zap.Error(err))
	c.JSON(code, gin.H{"error": err.Error()})
}

func preflight(c *gin.Context) {
	c.Header("Access-Control-Allow-Methods", allowMethods)
	c.Header("Access-Control-Allow-Headers", allowHeaders)
	c.Status(http.StatusOK)
}
