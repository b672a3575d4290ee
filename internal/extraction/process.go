package extraction

import (
	"context"
	"time"
)

// ProcessRequest is one document handed over by the (external) upload
// front-end.
type ProcessRequest struct {
	SessionID string
	FileName  string
	FileSize  int64
	Content   []byte
	ClientIP  string
	UserAgent string
}

// ProcessResponse is the full outcome of a processing attempt.
type ProcessResponse struct {
	SessionID    string   `json:"session_id"`
	ContentHash  string   `json:"content_hash"`
	Result       []byte   `json:"result,omitempty"`
	Confidence   *float64 `json:"confidence,omitempty"`
	Cached       bool     `json:"cached"`
	Success      bool     `json:"success"`
	TicketKey    string   `json:"ticket_key,omitempty"`
	LatencyMs    int64    `json:"latency_ms"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

// ProcessDocument runs the whole pipeline for one document: hash, cache probe
// or fresh extraction, side-effect creation, ledger append, metrics fold. The
// attempt is ledgered whatever the outcome; a side-effect failure degrades to
// a ticketless response rather than failing the attempt.
func (s *Service) ProcessDocument(ctx context.Context, req ProcessRequest) (*ProcessResponse, error) {
	start := time.Now()
	contentHash := HashContent(req.Content)

	res, err := s.LookupOrCompute(ctx, contentHash, func(ctx context.Context) (*Outcome, error) {
		return s.opts.Extractor.ComputeExtraction(ctx, req.Content)
	})
	if err != nil {
		return nil, err
	}

	var ticketKey string
	if res.Success && !res.Cached && s.opts.SideEffector != nil {
		ref, err := s.opts.SideEffector.CreateSideEffect(ctx, res.Payload)
		if err != nil {
			s.log.WithError(err).WithField("content_hash", contentHash).Warn("Side effect creation failed")
		} else {
			ticketKey = ref
		}
	}

	latencyMs := time.Since(start).Milliseconds()
	rec, err := s.RecordAttempt(ctx, Attempt{
		SessionID:    req.SessionID,
		FileName:     req.FileName,
		FileSize:     req.FileSize,
		ContentHash:  contentHash,
		Success:      res.Success,
		CacheHit:     res.Cached,
		TicketKey:    ticketKey,
		QualityScore: res.Confidence,
		LatencyMs:    latencyMs,
		ErrorMessage: res.ErrorMessage,
		ClientIP:     req.ClientIP,
		UserAgent:    req.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	return &ProcessResponse{
		SessionID:    rec.SessionID,
		ContentHash:  contentHash,
		Result:       res.Payload,
		Confidence:   res.Confidence,
		Cached:       res.Cached,
		Success:      res.Success,
		TicketKey:    ticketKey,
		LatencyMs:    latencyMs,
		ErrorMessage: res.ErrorMessage,
	}, nil
}
