package output

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/LordLuceus/melonaccess/internal/bus"
	"github.com/LordLuceus/melonaccess/internal/protocol"
	"github.com/LordLuceus/melonaccess/internal/textnorm"
	"github.com/nats-io/nats.go"
)

// Service exposes the Coordinator and Normalizer over the message bus.
// Game integrations publish candidate text and rule registrations; the
// service decodes and forwards them.
type Service struct {
	bus    *bus.Client
	coord  *Coordinator
	norm   *textnorm.Normalizer
	logger *slog.Logger
	subs   []*nats.Subscription
}

func NewService(busClient *bus.Client, coord *Coordinator, norm *textnorm.Normalizer, log *slog.Logger) *Service {
	return &Service{
		bus:    busClient,
		coord:  coord,
		norm:   norm,
		logger: log.With(slog.String("component", "output-service")),
	}
}

func (s *Service) Start() error {
	handlers := []struct {
		subject string
		handler nats.MsgHandler
	}{
		{protocol.SubjectSpeechOutput, s.handleOutput},
		{protocol.SubjectSpeechRepeat, s.handleRepeat},
		{protocol.SubjectSpeechStop, s.handleStop},
		{protocol.SubjectRulesAdd, s.handleRuleAdd},
		{protocol.SubjectRulesClear, s.handleRuleClear},
	}
	for _, h := range handlers {
		sub, err := s.bus.Conn().Subscribe(h.subject, h.handler)
		if err != nil {
			s.Close()
			return fmt.Errorf("subscribe %s: %w", h.subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	return nil
}

func (s *Service) Close() {
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.subs = nil
}

func (s *Service) Healthy() bool {
	return len(s.subs) == 5
}

func (s *Service) handleOutput(msg *nats.Msg) {
	var req protocol.OutputRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode output request", slogError(err))
		return
	}
	s.coord.Output(req.Speaker, req.Text, req.Category)
}

func (s *Service) handleRepeat(_ *nats.Msg) {
	s.coord.RepeatLast()
}

func (s *Service) handleStop(_ *nats.Msg) {
	s.coord.Stop()
}

func (s *Service) handleRuleAdd(msg *nats.Msg) {
	var req protocol.RuleRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode rule request", slogError(err))
		return
	}
	switch req.Kind {
	case "literal":
		s.norm.AddReplacement(req.Pattern, req.Replacement)
	case "pattern":
		var opts []textnorm.PatternOption
		if req.CaseInsensitive {
			opts = append(opts, textnorm.CaseInsensitive())
		}
		if err := s.norm.AddPatternReplacement(req.Pattern, req.Replacement, opts...); err != nil {
			s.logger.Warn("rejected pattern rule", slogError(err))
		}
	default:
		s.logger.Warn("unknown rule kind", slog.String("kind", req.Kind))
	}
}

func (s *Service) handleRuleClear(msg *nats.Msg) {
	var req protocol.RuleClear
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode rule clear", slogError(err))
		return
	}
	switch req.Kind {
	case "literal":
		s.norm.ClearReplacements()
	case "pattern":
		s.norm.ClearPatternReplacements()
	case "all":
		s.norm.ClearAll()
	default:
		s.logger.Warn("unknown rule clear kind", slog.String("kind", req.Kind))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
