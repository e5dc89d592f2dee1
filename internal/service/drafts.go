package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/and161185/rootine/internal/convert"
	"github.com/and161185/rootine/internal/errs"
	"github.com/and161185/rootine/internal/model"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const maxPromptLen = 2000

// RoutineGenerator turns a free-form prompt into a routine JSON document.
type RoutineGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// DraftService proposes routines without persisting them.
type DraftService interface {
	// Draft asks the generator for a routine. Unusable output yields an
	// empty medium-detail draft instead of an error.
	Draft(ctx context.Context, prompt string) (*model.Routine, error)
}

type DraftServiceImpl struct {
	gen RoutineGenerator
	log *zap.Logger
}

// NewDraftService constructs DraftService. A nil gen makes every call fail
// with ErrUnavailable.
func NewDraftService(gen RoutineGenerator, log *zap.Logger) *DraftServiceImpl {
	return &DraftServiceImpl{gen: gen, log: log}
}

func (s *DraftServiceImpl) Draft(ctx context.Context, prompt string) (*model.Routine, error) {
	if s.gen == nil {
		return nil, fmt.Errorf("%w: routine generator not configured", errs.ErrUnavailable)
	}
	prompt = strings.TrimSpace(prompt)
	switch {
	case prompt == "":
		return nil, fmt.Errorf("%w: empty prompt", errs.ErrInvalidArgument)
	case len(prompt) > maxPromptLen:
		return nil, fmt.Errorf("%w: prompt longer than %d", errs.ErrInvalidArgument, maxPromptLen)
	}

	out, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate routine: %w", err)
	}
	r, err := parseDraft(out)
	if err != nil {
		s.log.Warn("unusable generator output, using empty draft", zap.Error(err))
		return fallbackDraft(), nil
	}
	return r, nil
}

func fallbackDraft() *model.Routine {
	return &model.Routine{DetailLevel: model.DetailMedium, Tasks: []model.Task{}}
}

// parseDraft reads the first JSON object in out, tolerating surrounding
// prose or code fences.
func parseDraft(out string) (*model.Routine, error) {
	start, end := strings.Index(out, "{"), strings.LastIndex(out, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object", errs.ErrInvalidArgument)
	}
	var doc structpb.Struct
	if err := protojson.Unmarshal([]byte(out[start:end+1]), &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrInvalidArgument, err)
	}
	r, err := convert.RoutineFromStruct(&doc)
	if err != nil {
		return nil, err
	}
	r.IsActive = false
	r.Title = strings.TrimSpace(r.Title)
	if r.DetailLevel == "" {
		r.DetailLevel = model.DetailMedium
	}
	switch {
	case len(r.Title) > maxTitleLen:
		return nil, fmt.Errorf("%w: title longer than %d", errs.ErrInvalidArgument, maxTitleLen)
	case !r.DetailLevel.Valid():
		return nil, fmt.Errorf("%w: detail level %q", errs.ErrInvalidArgument, r.DetailLevel)
	}
	if r.Tasks == nil {
		r.Tasks = []model.Task{}
	}
	for i := range r.Tasks {
		if err := prepareTask(&r.Tasks[i]); err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
	}
	return r, nil
}
