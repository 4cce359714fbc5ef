// Package server exposes enrollment, identification and verification over
// HTTP.
package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	fingerprint "github.com/high-horse/fingerprint-server"
	"github.com/high-horse/fingerprint-server/config"
	"github.com/high-horse/fingerprint-server/feature"
	"github.com/high-horse/fingerprint-server/matcher"
	"github.com/high-horse/fingerprint-server/transparency"
)

type Server struct {
	app       *fiber.App
	matcher   *matcher.Matcher
	creator   *fingerprint.TemplateCreator
	validate  *validator.Validate
	log       *logrus.Logger
	addr      string
	storePath string
	saveMu    sync.Mutex
}

// New wires a server from cfg. When cfg.Store.Path names an existing
// snapshot, its templates are loaded before the server accepts requests.
func New(cfg config.Configuration, log *logrus.Logger) (*Server, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}

	var tl *transparency.Logger
	if log.IsLevelEnabled(logrus.TraceLevel) {
		tl = transparency.NewLogger(&transparencyContents{log: log})
	}

	s := &Server{
		creator:   fingerprint.NewTemplateCreatorWith(cfg.Detector, log, tl),
		validate:  validator.New(),
		log:       log,
		addr:      cfg.Server.Addr,
		storePath: cfg.Store.Path,
	}
	s.matcher = matcher.New(
		matcher.WithThreshold(cfg.Matcher.Threshold),
		matcher.WithWorkers(cfg.Workers),
		matcher.WithLogger(log),
		matcher.WithTransparency(tl),
	)
	if err := s.loadStore(); err != nil {
		return nil, err
	}

	s.app = fiber.New(fiber.Config{
		AppName:      cfg.Server.AppName,
		BodyLimit:    cfg.Server.BodyLimit,
		JSONEncoder:  jsoniter.Marshal,
		JSONDecoder:  jsoniter.Unmarshal,
		ErrorHandler: s.handleError,
	})
	s.app.Use(recover.New())
	s.app.Use(requestid.New(requestid.Config{
		Generator: uuid.NewString,
	}))
	s.app.Use(s.accessLog)
	s.app.Use(cors.New())
	if cfg.Server.RateLimit > 0 {
		s.app.Use(newRateLimiter(cfg.Server.RateLimit, cfg.Server.Burst).handler)
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.app.Get("/health", s.health)
	s.app.Get("/identities", s.identities)
	s.app.Post("/match", s.matchFingerprints)
	s.app.Post("/enroll", s.enroll)
	s.app.Post("/identify", s.identify)
	s.app.Post("/verify", s.verify)
}

func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Matcher() *matcher.Matcher { return s.matcher }

func (s *Server) Listen() error {
	s.log.WithField("addr", s.addr).Info("server starting")
	return s.app.Listen(s.addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) loadStore() error {
	if s.storePath == "" {
		return nil
	}
	f, err := os.Open(s.storePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open template store: %w", err)
	}
	defer f.Close()

	if err := s.matcher.Store().Load(f); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"path":      s.storePath,
		"templates": s.matcher.Store().Len(),
	}).Info("template store loaded")
	return nil
}

// enrollTemplate adds a template and persists the store before returning.
// If the snapshot cannot be written the template is removed again, so a
// failed enrollment never lingers in memory.
func (s *Server) enrollTemplate(identity string, features feature.Vector) (matcher.Template, error) {
	if s.storePath == "" {
		return s.matcher.EnrollTemplate(identity, features)
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	tmpl, err := s.matcher.EnrollTemplate(identity, features)
	if err != nil {
		return matcher.Template{}, err
	}
	if err := s.saveStore(); err != nil {
		s.matcher.Store().Remove(tmpl.ID)
		s.log.WithError(err).WithFields(logrus.Fields{
			"identity": identity,
			"template": tmpl.ID,
		}).Warn("enrollment rolled back")
		return matcher.Template{}, err
	}
	return tmpl, nil
}

// saveStore rewrites the snapshot through a temp file so a crash never
// leaves a truncated store behind. Callers hold saveMu.
func (s *Server) saveStore() error {
	tmp, err := os.CreateTemp(filepath.Dir(s.storePath), ".templates-*")
	if err != nil {
		return fmt.Errorf("save template store: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := s.matcher.Store().Save(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save template store: %w", err)
	}
	return os.Rename(tmp.Name(), s.storePath)
}

type transparencyContents struct {
	log *logrus.Logger
}

func (c *transparencyContents) Accepts(key string) bool {
	return true
}

func (c *transparencyContents) Accept(key, mime string, data []byte) error {
	c.log.WithFields(logrus.Fields{
		"key":   key,
		"mime":  mime,
		"bytes": len(data),
	}).Trace("transparency")
	return nil
}
