package protocol

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cgast/examiner/pkg/exam"
	"github.com/cgast/examiner/pkg/history"
	"github.com/cgast/examiner/pkg/report"
	"github.com/cgast/examiner/pkg/verify"
)

// HistoryLister returns recorded runs for an exam.
type HistoryLister interface {
	List(examID string) ([]history.Run, error)
}

// Service exposes one exam session over JSON-RPC. Issuer and History are
// optional; the methods that need them fail when they are nil.
type Service struct {
	Runner   *verify.Runner
	Prober   verify.Prober
	Exporter *report.Exporter
	Issuer   report.Issuer
	History  HistoryLister
}

// Register adds every exam method to h.
func (s *Service) Register(h *Handler) {
	h.Register(MethodExamStatus, s.status)
	h.Register(MethodExamVerifyTask, s.verifyTask)
	h.Register(MethodExamVerifyAll, s.verifyAll)
	h.Register(MethodExamResetTask, s.resetTask)
	h.Register(MethodExamResetAll, s.resetAll)
	h.Register(MethodHostsProbe, s.probe)
	h.Register(MethodReportExport, s.export)
	h.Register(MethodHistoryList, s.history)
}

func (s *Service) exam() *exam.Exam {
	return s.Runner.Exam()
}

func (s *Service) task(params json.RawMessage) (*exam.Task, *Error) {
	p, rpcErr := ParseParams[TaskParams](params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	t := s.exam().Task(p.TaskID)
	if t == nil {
		return nil, &Error{Code: CodeUnknownTask, Message: fmt.Sprintf("unknown task: %q", p.TaskID)}
	}
	return t, nil
}

func verifyError(err error) *Error {
	if verify.IsDefinitional(err) {
		return &Error{Code: CodeExamInvalid, Message: err.Error()}
	}
	return &Error{Code: CodeVerifyFailed, Message: err.Error()}
}

func (s *Service) status(_ context.Context, _ json.RawMessage) (any, *Error) {
	return exam.Summarize(s.exam()), nil
}

func (s *Service) verifyTask(ctx context.Context, params json.RawMessage) (any, *Error) {
	t, rpcErr := s.task(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.Runner.VerifyTask(ctx, t); err != nil {
		return nil, verifyError(err)
	}
	for _, ts := range exam.Summarize(s.exam()).Tasks {
		if ts.ID == t.ID {
			return ts, nil
		}
	}
	return nil, &Error{Code: CodeInternalError, Message: "task vanished from summary"}
}

func (s *Service) verifyAll(ctx context.Context, _ json.RawMessage) (any, *Error) {
	if err := s.Runner.VerifyAll(ctx); err != nil {
		return nil, verifyError(err)
	}
	return exam.Summarize(s.exam()), nil
}

func (s *Service) resetTask(_ context.Context, params json.RawMessage) (any, *Error) {
	t, rpcErr := s.task(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	s.Runner.ResetTask(t)
	return ResetResult{Reset: len(t.Checks)}, nil
}

func (s *Service) resetAll(_ context.Context, _ json.RawMessage) (any, *Error) {
	s.Runner.ResetAll()
	n := 0
	for _, t := range s.exam().Tasks {
		n += len(t.Checks)
	}
	return ResetResult{Reset: n}, nil
}

func (s *Service) probe(ctx context.Context, params json.RawMessage) (any, *Error) {
	p, rpcErr := ParseParams[ProbeParams](params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	targets, err := verify.Targets(s.exam(), p.Hosts...)
	if err != nil {
		return nil, &Error{Code: CodeUnknownHost, Message: err.Error()}
	}
	return s.Runner.ProbeHosts(ctx, s.Prober, targets), nil
}

func (s *Service) export(ctx context.Context, params json.RawMessage) (any, *Error) {
	p, rpcErr := ParseParams[ExportParams](params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if !p.Publish {
		path, err := s.Exporter.Export(ctx, s.exam())
		if err != nil {
			return nil, &Error{Code: CodeExportFailed, Message: err.Error()}
		}
		return ExportResult{Path: path}, nil
	}

	if s.Issuer == nil {
		return nil, &Error{Code: CodeExportFailed, Message: "publishing is not configured"}
	}
	path, url, err := s.Exporter.ExportAndPublish(ctx, s.exam(), s.Issuer)
	if err != nil {
		var data any
		if path != "" {
			data = ExportResult{Path: path}
		}
		return nil, &Error{Code: CodeExportFailed, Message: err.Error(), Data: data}
	}
	return ExportResult{Path: path, URL: url}, nil
}

func (s *Service) history(_ context.Context, params json.RawMessage) (any, *Error) {
	if s.History == nil {
		return nil, &Error{Code: CodeHistoryDisabled, Message: "history is disabled"}
	}
	p, rpcErr := ParseParams[HistoryParams](params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	runs, err := s.History.List(s.exam().ID)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	if p.Limit > 0 && len(runs) > p.Limit {
		runs = runs[len(runs)-p.Limit:]
	}
	if runs == nil {
		runs = []history.Run{}
	}
	return runs, nil
}
