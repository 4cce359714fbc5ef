package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/high-horse/fingerprint-server/feature"
	"github.com/high-horse/fingerprint-server/matcher"
	"github.com/high-horse/fingerprint-server/skeleton"
)

const requestIDKey = "requestid"

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"time":      time.Now(),
		"templates": s.matcher.Store().Len(),
	})
}

func (s *Server) identities(c *fiber.Ctx) error {
	return c.JSON(s.matcher.Store().Identities())
}

func (s *Server) matchFingerprints(c *fiber.Ctx) error {
	start := time.Now()

	var req CompareFingerprintRequest
	if err := s.parse(c, &req); err != nil {
		return err
	}

	probe, err := s.creator.FromBase64(req.ProbeImage)
	if err != nil {
		return fmt.Errorf("probe image: %w", err)
	}
	candidate, err := s.creator.FromBase64(req.CandidateImage)
	if err != nil {
		return fmt.Errorf("candidate image: %w", err)
	}

	score, err := s.matcher.MatchTemplates(probe, candidate)
	if err != nil {
		return err
	}

	resp := CompareFingerprintResponse{
		Score:      score,
		Match:      s.matcher.Accepts(score),
		Confidence: confidence(score),
		Details: CompareDetails{
			ProbeMinutiae:     probe.Len(),
			CandidateMinutiae: candidate.Len(),
		},
		Elapsed: time.Since(start).String(),
	}
	s.log.WithFields(logrus.Fields{
		"score":      score.String(),
		"is_match":   resp.Match,
		"request_id": c.Locals(requestIDKey),
	}).Debug("fingerprints compared")
	return c.JSON(resp)
}

func (s *Server) enroll(c *fiber.Ctx) error {
	var req EnrollRequest
	if err := s.parse(c, &req); err != nil {
		return err
	}
	features, err := s.resolve(req.Probe)
	if err != nil {
		return err
	}
	tmpl, err := s.enrollTemplate(req.Identity, features)
	if err != nil {
		return err
	}

	templates, _ := s.matcher.Store().Templates(req.Identity)
	return c.Status(fiber.StatusCreated).JSON(EnrollResponse{
		Identity:   req.Identity,
		TemplateID: tmpl.ID,
		Templates:  len(templates),
		Minutiae:   features.Len(),
		Features:   features,
	})
}

func (s *Server) identify(c *fiber.Ctx) error {
	var req Probe
	if err := s.parse(c, &req); err != nil {
		return err
	}
	features, err := s.resolve(req)
	if err != nil {
		return err
	}
	res, err := s.matcher.Identify(c.UserContext(), features)
	if err != nil {
		return err
	}
	return c.JSON(IdentifyResponse{
		Identity: res.Identity,
		Score:    res.Score,
		Matched:  res.Identity != "" && s.matcher.Accepts(res.Score),
	})
}

func (s *Server) verify(c *fiber.Ctx) error {
	var req VerifyRequest
	if err := s.parse(c, &req); err != nil {
		return err
	}
	features, err := s.resolve(req.Probe)
	if err != nil {
		return err
	}
	ok, score, err := s.matcher.Verify(c.UserContext(), features, req.Identity)
	if err != nil {
		return err
	}
	return c.JSON(VerifyResponse{
		Identity: req.Identity,
		Accepted: ok,
		Score:    score,
	})
}

func (s *Server) parse(c *fiber.Ctx, v interface{}) error {
	if err := c.BodyParser(v); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	return s.validate.Struct(v)
}

// resolve turns a probe into a feature vector, extracting minutiae when an
// image was sent.
func (s *Server) resolve(p Probe) (feature.Vector, error) {
	if p.Image != "" {
		return s.creator.FromBase64(p.Image)
	}
	v := feature.Vector(p.Features)
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

func confidence(score matcher.Score) string {
	d, ok := score.Value()
	switch {
	case !ok:
		return "none"
	case d <= -0.75:
		return "high"
	case d <= -0.5:
		return "medium"
	case d <= -0.25:
		return "low"
	default:
		return "none"
	}
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := statusOf(err)
	if code >= fiber.StatusInternalServerError {
		s.log.WithError(err).WithField("request_id", c.Locals(requestIDKey)).Error("request failed")
	}
	rid, _ := c.Locals(requestIDKey).(string)
	return c.Status(code).JSON(ErrorResponse{
		Error:     err.Error(),
		RequestID: rid,
	})
}

func statusOf(err error) int {
	var fe *fiber.Error
	var ve validator.ValidationErrors
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.As(err, &ve):
		return fiber.StatusBadRequest
	case errors.Is(err, skeleton.ErrUnsupportedFormat):
		return fiber.StatusUnsupportedMediaType
	case errors.Is(err, feature.ErrShape),
		errors.Is(err, feature.ErrNonFinite),
		errors.Is(err, skeleton.ErrDegenerate),
		errors.Is(err, skeleton.ErrBadEncoding),
		errors.Is(err, matcher.ErrEmptyIdentity):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) accessLog(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	if err != nil {
		if herr := c.App().ErrorHandler(c, err); herr != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}

	status := c.Response().StatusCode()
	entry := s.log.WithFields(logrus.Fields{
		"request_id":    c.Locals(requestIDKey),
		"method":        c.Method(),
		"path":          c.Path(),
		"status":        status,
		"latency_ms":    time.Since(start).Milliseconds(),
		"ip":            c.IP(),
		"response_size": len(c.Response().Body()),
	})
	switch {
	case status >= fiber.StatusInternalServerError:
		entry.Error("server error")
	case status >= fiber.StatusBadRequest:
		entry.Warn("client error")
	default:
		entry.Info("success")
	}
	return nil
}
