package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"statefacts/internal/catalog"
	"statefacts/pkg/domain"
)

// DefaultStoreTimeout bounds every Fact Store call made by the Service.
const DefaultStoreTimeout = 5 * time.Second

const msgStateNotFound = "state not found"

// Service merges the reference catalog with stored fun facts and applies
// position-addressed mutations. It holds no mutable state of its own; all
// coordination between concurrent writers happens inside the FactStore.
type Service struct {
	catalog  *catalog.Catalog
	store    domain.FactStore
	policy   domain.Policy
	timeout  time.Duration
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
	validate *validator.Validate
	now      func() time.Time
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithLogger sets the logger. A nil logger keeps the no-op default.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the metrics recorder.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithPolicy replaces the default disabled and suppressed code sets.
func WithPolicy(policy domain.Policy) Option {
	return func(s *Service) {
		if policy.Disabled == nil {
			policy.Disabled = domain.CodeSet{}
		}
		if policy.Suppressed == nil {
			policy.Suppressed = domain.CodeSet{}
		}
		s.policy = policy
	}
}

// WithStoreTimeout bounds each Fact Store call. Non-positive values keep the default.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock overrides the time source used for operation durations.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires a Service over an immutable catalog and a fact store.
func NewService(cat *catalog.Catalog, store domain.FactStore, opts ...Option) *Service {
	s := &Service{
		catalog:  cat,
		store:    store,
		policy:   domain.DefaultPolicy(),
		timeout:  DefaultStoreTimeout,
		logger:   noopLogger{},
		metrics:  noopMetrics{},
		tracer:   noopTracer{},
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
	s.validate.RegisterTagNameFunc(jsonName)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the reference catalog.
func (s *Service) Catalog() *catalog.Catalog { return s.catalog }

// Policy returns the active fun-fact policy.
func (s *Service) Policy() domain.Policy { return s.policy }

// Store returns the underlying fact store.
func (s *Service) Store() domain.FactStore { return s.store }

// Lookup resolves a caller supplied code against the catalog. Malformed and
// unknown codes both report false.
func (s *Service) Lookup(code string) (domain.StateRecord, bool) {
	return s.catalog.Lookup(domain.NormalizeCode(code))
}

// Composite returns the state record merged with its fun facts.
func (s *Service) Composite(ctx context.Context, code string) (domain.CompositeView, error) {
	var view domain.CompositeView
	err := s.run(ctx, domain.OpComposite, func(ctx context.Context) error {
		record, err := s.resolve(domain.OpComposite, code)
		if err != nil {
			return err
		}
		show := s.policy.ShowFacts(record.Code, false)
		if !show {
			view = domain.NewCompositeView(record, domain.FactDocument{}, false, false)
			return nil
		}
		doc, found, err := s.get(ctx, domain.OpComposite, record.Code)
		if err != nil {
			return err
		}
		view = domain.NewCompositeView(record, doc, found, true)
		return nil
	})
	return view, err
}

// CompositeAll merges every record passing filter with its fun facts using a
// single List call against the store.
func (s *Service) CompositeAll(ctx context.Context, filter domain.Filter) ([]domain.CompositeView, error) {
	var views []domain.CompositeView
	err := s.run(ctx, domain.OpCompositeAll, func(ctx context.Context) error {
		if filter == "" {
			filter = domain.FilterAll
		}
		if !filter.Valid() {
			return domain.InvalidArgument(domain.OpCompositeAll, "", fmt.Sprintf("unknown filter %q", filter))
		}
		docs, err := s.list(ctx, domain.OpCompositeAll)
		if err != nil {
			return err
		}
		byCode := make(map[string]domain.FactDocument, len(docs))
		for _, d := range docs {
			byCode[d.StateCode] = d
		}
		records := s.catalog.Records(filter)
		views = make([]domain.CompositeView, 0, len(records))
		for _, record := range records {
			doc, found := byCode[record.Code]
			views = append(views, domain.NewCompositeView(record, doc, found, s.policy.ShowFacts(record.Code, true)))
		}
		return nil
	})
	return views, err
}

// Field returns one reference field of a state. It never touches the store.
func (s *Service) Field(ctx context.Context, code, field string) (domain.FieldView, error) {
	var view domain.FieldView
	err := s.run(ctx, domain.OpField, func(context.Context) error {
		record, err := s.resolve(domain.OpField, code)
		if err != nil {
			return err
		}
		v, ok := domain.FieldOf(record, field)
		if !ok {
			return domain.InvalidArgument(domain.OpField, record.Code, fmt.Sprintf("unknown field %q", field))
		}
		view = v
		return nil
	})
	return view, err
}

// PickRandomFact returns one fact chosen uniformly at random.
func (s *Service) PickRandomFact(ctx context.Context, code string) (string, error) {
	var fact string
	err := s.run(ctx, domain.OpPickRandom, func(ctx context.Context) error {
		record, err := s.resolve(domain.OpPickRandom, code)
		if err != nil {
			return err
		}
		err = s.withStore(ctx, domain.OpPickRandom, record.Code, func(ctx context.Context) error {
			var err error
			fact, err = s.store.PickRandom(ctx, record.Code)
			return err
		})
		return err
	})
	return fact, err
}

// AppendFacts adds each submitted fact not already stored, creating the
// document on first use.
func (s *Service) AppendFacts(ctx context.Context, code string, req domain.AppendRequest) (domain.FactDocument, error) {
	var doc domain.FactDocument
	err := s.run(ctx, domain.OpAppend, func(ctx context.Context) error {
		record, err := s.resolve(domain.OpAppend, code)
		if err != nil {
			return err
		}
		if !s.policy.AcceptsFacts(record.Code) {
			return domain.Forbidden(domain.OpAppend, record.Code, "fun facts are disabled for this state")
		}
		if err := s.check(domain.OpAppend, record.Code, req); err != nil {
			return err
		}
		if err := requireText(domain.OpAppend, record.Code, req.Facts...); err != nil {
			return err
		}
		return s.withStore(ctx, domain.OpAppend, record.Code, func(ctx context.Context) error {
			var err error
			doc, err = s.store.AppendDistinct(ctx, record.Code, req.Facts)
			return err
		})
	})
	return doc, err
}

// ReplaceFact overwrites the fact at the request's 1-based index.
func (s *Service) ReplaceFact(ctx context.Context, code string, req domain.ReplaceRequest) (domain.FactDocument, error) {
	var doc domain.FactDocument
	err := s.run(ctx, domain.OpReplace, func(ctx context.Context) error {
		record, err := s.resolve(domain.OpReplace, code)
		if err != nil {
			return err
		}
		if err := s.check(domain.OpReplace, record.Code, req); err != nil {
			return err
		}
		if err := requireText(domain.OpReplace, record.Code, req.Fact); err != nil {
			return err
		}
		return s.withStore(ctx, domain.OpReplace, record.Code, func(ctx context.Context) error {
			var err error
			doc, err = s.store.ReplaceAt(ctx, record.Code, *req.Index, req.Fact)
			return err
		})
	})
	return doc, err
}

// DeleteFact removes the fact at the request's 1-based index.
func (s *Service) DeleteFact(ctx context.Context, code string, req domain.DeleteRequest) (domain.FactDocument, error) {
	var doc domain.FactDocument
	err := s.run(ctx, domain.OpDelete, func(ctx context.Context) error {
		record, err := s.resolve(domain.OpDelete, code)
		if err != nil {
			return err
		}
		if err := s.check(domain.OpDelete, record.Code, req); err != nil {
			return err
		}
		return s.withStore(ctx, domain.OpDelete, record.Code, func(ctx context.Context) error {
			var err error
			doc, err = s.store.DeleteAt(ctx, record.Code, *req.Index)
			return err
		})
	})
	return doc, err
}

// ListDocuments returns every stored fact document ordered by code.
func (s *Service) ListDocuments(ctx context.Context) ([]domain.FactDocument, error) {
	var docs []domain.FactDocument
	err := s.run(ctx, domain.OpList, func(ctx context.Context) error {
		var err error
		docs, err = s.list(ctx, domain.OpList)
		return err
	})
	return docs, err
}

// Ready reports whether the fact store answers a List within the store timeout.
func (s *Service) Ready(ctx context.Context) error {
	_, err := s.list(ctx, domain.OpList)
	return err
}

func (s *Service) resolve(op, code string) (domain.StateRecord, error) {
	normalized := domain.NormalizeCode(code)
	record, ok := s.catalog.Lookup(normalized)
	if !ok {
		return domain.StateRecord{}, domain.NotFound(op, normalized, msgStateNotFound)
	}
	return record, nil
}

// check runs the struct tag validation of a request payload.
func (s *Service) check(op, code string, req any) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return domain.InvalidArgument(op, code, describe(verrs[0]))
		}
		return domain.InvalidArgument(op, code, err.Error())
	}
	return nil
}

// describe renders a validation failure using the JSON field names.
func describe(fe validator.FieldError) string {
	field, _, indexed := strings.Cut(fe.Field(), "[")
	switch fe.Tag() {
	case "required":
		if indexed {
			return field + " must not contain empty values"
		}
		return field + " is required"
	case "min":
		return field + " must not be empty"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// jsonName reports the JSON key of a struct field to the validator.
func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

func requireText(op, code string, facts ...string) error {
	for _, f := range facts {
		if strings.TrimSpace(f) == "" {
			return domain.InvalidArgument(op, code, "fun facts must not be blank")
		}
	}
	return nil
}

func (s *Service) get(ctx context.Context, op, code string) (domain.FactDocument, bool, error) {
	var (
		doc   domain.FactDocument
		found bool
	)
	err := s.withStore(ctx, op, code, func(ctx context.Context) error {
		var err error
		doc, found, err = s.store.Get(ctx, code)
		return err
	})
	return doc, found, err
}

func (s *Service) list(ctx context.Context, op string) ([]domain.FactDocument, error) {
	var docs []domain.FactDocument
	err := s.withStore(ctx, op, "", func(ctx context.Context) error {
		var err error
		docs, err = s.store.List(ctx)
		return err
	})
	return docs, err
}

// withStore bounds a store call by the store timeout and classifies its
// failure. Domain errors pass through; everything else is Unavailable.
func (s *Service) withStore(ctx context.Context, op, code string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := fn(ctx)
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		if de.Kind == domain.KindUnavailable {
			s.logger.Error("fact store failure", "operation", op, "state", code, "error", err)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("store call exceeded %s: %w", s.timeout, err)
	}
	s.logger.Error("fact store failure", "operation", op, "state", code, "error", err)
	return domain.Unavailable(op, code, err)
}

// run wraps an operation with tracing, metrics and debug logging.
func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	start := s.now()
	err := fn(ctx)
	duration := s.now().Sub(start)
	s.metrics.Observe(ctx, op, err == nil, duration)
	span.End(err)
	if err != nil {
		s.logger.Debug("operation failed", "operation", op, "kind", domain.KindOf(err), "error", err)
	} else {
		s.logger.Debug("operation completed", "operation", op, "duration", duration)
	}
	return err
}
