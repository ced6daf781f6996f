package sfnodes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/blueberrycongee/sfnodes/internal/httputil"
	"github.com/blueberrycongee/sfnodes/internal/metrics"
	"github.com/blueberrycongee/sfnodes/internal/observability"
	"github.com/blueberrycongee/sfnodes/pkg/errors"
	"github.com/blueberrycongee/sfnodes/pkg/types"
	"github.com/blueberrycongee/sfnodes/providers/siliconflow"
)

// Client executes node items against one SiliconFlow account.
// Items of a batch are processed sequentially, in order.
//
// Client is safe for concurrent use by multiple goroutines; each Execute
// call runs its own batch.
type Client struct {
	transport *siliconflow.Client
	logger    *slog.Logger
	tracer    trace.Tracer
	meters    *observability.ItemInstruments
	events    otellog.Logger
	config    *ClientConfig
}

// New creates a new client with the given options.
//
// Example:
//
//	client, err := sfnodes.New(
//	    sfnodes.WithCredentials(sfnodes.Credentials{APIKey: os.Getenv("SILICONFLOW_API_KEY")}),
//	    sfnodes.WithTimeout(2*time.Minute),
//	)
func New(opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Credentials.Validate(cfg.AllowPrivateBaseURL); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", err)
	}
	cfg.Credentials = cfg.Credentials.Normalized()

	transportOpts := []siliconflow.Option{
		siliconflow.WithMaxResponseBytes(cfg.MaxResponseBytes),
		siliconflow.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		siliconflow.WithHeader("User-Agent", "sfnodes/"+Version),
	}
	if cfg.HTTPClient != nil {
		transportOpts = append(transportOpts, siliconflow.WithHTTPClient(cfg.HTTPClient))
	} else if cfg.Timeout > 0 {
		transportOpts = append(transportOpts, siliconflow.WithTimeout(cfg.Timeout))
	}

	meters, err := observability.NewItemInstruments(cfg.Meter)
	if err != nil {
		return nil, fmt.Errorf("create instruments: %w", err)
	}

	c := &Client{
		transport: siliconflow.New(cfg.Credentials, transportOpts...),
		logger:    cfg.Logger,
		tracer:    cfg.Tracer,
		meters:    meters,
		events:    cfg.EventLogger,
		config:    cfg,
	}

	c.logger.Info("sfnodes client initialized",
		"base_url", cfg.Credentials.BaseURL,
		"continue_on_fail", cfg.ContinueOnFail,
		"rate_limit", cfg.RateLimit,
	)
	return c, nil
}

// ContinueOnFail reports whether failed items become error records.
func (c *Client) ContinueOnFail() bool {
	return c.config.ContinueOnFail
}

// Execute processes items in order and returns one record per item.
//
// With continue-on-fail a failing item yields an error record and the batch
// goes on. Without it the first failure stops the batch: the records produced
// so far are returned together with the error. A canceled ctx stops the batch
// between items in both modes.
func (c *Client) Execute(ctx context.Context, items []Item) ([]OutputRecord, error) {
	ctx, batchID := observability.GetOrCreateBatchID(ctx)
	logger := c.logger.With("batch_id", batchID)
	start := time.Now()

	logger.Info("batch started", "items", len(items), "continue_on_fail", c.config.ContinueOnFail)

	records := make([]OutputRecord, 0, len(items))
	for i := range items {
		if err := ctx.Err(); err != nil {
			logger.Warn("batch canceled", "item", i, "completed", len(records))
			metrics.RecordBatch(true)
			return records, fmt.Errorf("batch canceled before item %d: %w", i, err)
		}

		rec, err := c.process(ctx, batchID, i, &items[i])
		if err != nil {
			resource := resourceOf(&items[i])
			metrics.RecordItem(resource, string(errorStatus(err)))
			c.meters.RecordItem(ctx, resource, string(errorStatus(err)))

			if c.config.ContinueOnFail {
				logger.Warn("item failed, continuing",
					"item", i,
					"resource", resource,
					"model", modelOfItem(&items[i]),
					"error", err,
				)
				records = append(records, NewErrorRecord(i, err))
				continue
			}

			logger.Error("item failed, aborting batch",
				"item", i,
				"resource", resource,
				"model", modelOfItem(&items[i]),
				"error", err,
			)
			metrics.RecordBatch(true)
			return records, fmt.Errorf("item %d: %w", i, err)
		}

		metrics.RecordItem(resourceOf(&items[i]), "success")
		c.meters.RecordItem(ctx, resourceOf(&items[i]), "success")
		records = append(records, rec)
	}

	metrics.RecordBatch(false)
	logger.Info("batch completed", "items", len(records), "duration", time.Since(start))
	return records, nil
}

func (c *Client) process(ctx context.Context, batchID string, index int, item *Item) (OutputRecord, error) {
	if item.err != nil {
		return OutputRecord{}, item.err
	}
	if item.Config == nil {
		return OutputRecord{}, errors.NewValidationError("Item has no request configuration")
	}

	resource := item.Config.Resource()
	model := modelOf(item.Config)
	ctx, span := observability.StartItemSpan(ctx, c.tracer, observability.ItemSpanAttributes{
		BatchID:  batchID,
		Item:     index,
		Resource: string(resource),
		Model:    model,
	})
	defer span.End()

	start := time.Now()
	event := observability.ItemEvent{
		BatchID:  batchID,
		Item:     index,
		Resource: string(resource),
		Model:    model,
	}

	var (
		out any
		raw json.RawMessage
		err error
	)
	switch cfg := item.Config.(type) {
	case *ChatConfig:
		out, raw, err = c.runChat(ctx, span, cfg)
	case *VisionConfig:
		out, raw, err = c.runVision(ctx, span, cfg, item.Binary)
	case *EmbeddingsConfig:
		out, raw, err = c.runEmbeddings(ctx, span, cfg)
	case *RerankConfig:
		out, raw, err = c.runRerank(ctx, span, cfg)
	default:
		err = errors.Validationf("Unsupported request configuration %T", cfg)
	}
	event.Duration = time.Since(start)
	if err != nil {
		observability.RecordError(span, err)
		event.Err = err
		event.ErrKind = string(errors.KindOf(err))
		observability.EmitItemEvent(ctx, c.events, event)
		return OutputRecord{}, err
	}
	observability.EmitItemEvent(ctx, c.events, event)

	c.logger.Debug("item completed",
		"batch_id", batchID,
		"item", index,
		"resource", resource,
		"model", model,
	)
	return OutputRecord{Item: index, JSON: out, Raw: raw}, nil
}

func (c *Client) runChat(ctx context.Context, span trace.Span, cfg *ChatConfig) (any, json.RawMessage, error) {
	req, err := BuildChatRequest(cfg)
	if err != nil {
		return nil, nil, err
	}
	resp, raw, _, err := c.completeChat(ctx, span, ResourceChat, req)
	if err != nil {
		return nil, nil, err
	}
	out, err := ShapeChatResponse(resp, raw, cfg.OutputMode)
	if err != nil {
		return nil, nil, err
	}
	return out, raw, nil
}

func (c *Client) runVision(ctx context.Context, span trace.Span, cfg *VisionConfig, binary map[string]BinaryData) (any, json.RawMessage, error) {
	req, err := BuildVisionRequest(cfg, binary)
	if err != nil {
		return nil, nil, err
	}
	resp, raw, size, err := c.completeChat(ctx, span, ResourceVision, req)
	if err != nil {
		if errors.IsKind(err, errors.KindValidation) {
			return nil, nil, err
		}
		c.logger.Debug("vision request failed",
			"model", cfg.Model,
			"images", len(cfg.Images),
			"payload", httputil.FormatSize(size),
		)
		return nil, nil, &VisionError{Model: cfg.Model, Images: len(cfg.Images), PayloadBytes: size, Err: err}
	}
	out, err := ShapeVisionResponse(resp, raw, len(cfg.Images))
	if err != nil {
		return nil, nil, err
	}
	return out, raw, nil
}

func (c *Client) runEmbeddings(ctx context.Context, span trace.Span, cfg *EmbeddingsConfig) (any, json.RawMessage, error) {
	req, err := BuildEmbeddingsRequest(cfg)
	if err != nil {
		return nil, nil, err
	}
	httpResp, _, err := c.post(ctx, span, ResourceEmbeddings, siliconflow.EmbeddingEndpoint, req, cfg.Model)
	if err != nil {
		return nil, nil, err
	}

	var resp types.EmbeddingResponse
	if err := siliconflow.DecodeJSON(httpResp, cfg.Model, &resp); err != nil {
		return nil, nil, err
	}
	if resp.Usage != nil {
		c.recordUsage(ctx, span, ResourceEmbeddings, cfg.Model, resp.Usage.PromptTokens, 0, "")
	}
	return ShapeEmbeddingsResponse(&resp, httpResp.Body), httpResp.Body, nil
}

func (c *Client) runRerank(ctx context.Context, span trace.Span, cfg *RerankConfig) (any, json.RawMessage, error) {
	req, err := BuildRerankRequest(cfg)
	if err != nil {
		return nil, nil, err
	}
	httpResp, _, err := c.post(ctx, span, ResourceRerank, siliconflow.RerankEndpoint, req, cfg.Model)
	if err != nil {
		return nil, nil, err
	}

	var resp types.RerankResponse
	if err := siliconflow.DecodeJSON(httpResp, cfg.Model, &resp); err != nil {
		return nil, nil, err
	}
	if resp.Tokens != nil {
		c.recordUsage(ctx, span, ResourceRerank, cfg.Model, resp.Tokens.InputTokens, resp.Tokens.OutputTokens, "")
	}
	return ShapeRerankResponse(&resp, httpResp.Body, cfg), httpResp.Body, nil
}

// completeChat posts a chat request and decodes the reply, folding an SSE
// stream into one response. The returned raw JSON is the response body, or
// the folded response for streams. size is the serialized request size.
func (c *Client) completeChat(ctx context.Context, span trace.Span, resource Resource, req *types.ChatRequest) (*types.ChatResponse, json.RawMessage, int, error) {
	httpResp, size, err := c.post(ctx, span, resource, siliconflow.ChatEndpoint, req, req.Model)
	if err != nil {
		return nil, nil, size, err
	}

	resp, raw, err := decodeChatResponse(httpResp, req.Model)
	if err != nil {
		return nil, nil, size, err
	}

	if resp.Usage != nil {
		finish := ""
		if len(resp.Choices) > 0 {
			finish = resp.Choices[0].FinishReason
		}
		c.recordUsage(ctx, span, resource, req.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, finish)
	}
	return resp, raw, size, nil
}

func decodeChatResponse(httpResp *siliconflow.Response, model string) (*types.ChatResponse, json.RawMessage, error) {
	if httpResp.IsEventStream() {
		resp, err := siliconflow.AggregateStream(httpResp.Body, model)
		if err != nil {
			return nil, nil, err
		}
		raw, err := json.Marshal(resp)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal folded stream: %w", err)
		}
		return resp, raw, nil
	}

	var resp types.ChatResponse
	if err := siliconflow.DecodeJSON(httpResp, model, &resp); err != nil {
		return nil, nil, err
	}
	return &resp, httpResp.Body, nil
}

// post encodes body and sends it to endpoint, recording latency and payload
// size. It returns the payload size even when the call fails.
func (c *Client) post(ctx context.Context, span trace.Span, resource Resource, endpoint string, body any, model string) (*siliconflow.Response, int, error) {
	payload, size, err := httputil.EncodeJSON(body)
	if err != nil {
		return nil, 0, fmt.Errorf("encode %s request: %w", resource, err)
	}
	observability.RecordPayloadSize(span, size)

	start := time.Now()
	resp, err := c.transport.Post(ctx, endpoint, payload, model)
	elapsed := time.Since(start)
	metrics.RecordAPICall(string(resource), model, size, elapsed)
	c.meters.RecordCall(ctx, string(resource), model, elapsed)
	if err != nil {
		return nil, size, err
	}
	return resp, size, nil
}

func (c *Client) recordUsage(ctx context.Context, span trace.Span, resource Resource, model string, input, output int, finishReason string) {
	observability.RecordUsage(span, input, output, finishReason)
	metrics.RecordTokens(string(resource), model, input, output)
	c.meters.RecordTokens(ctx, string(resource), model, input, output)
}

// VerifyCredentials probes GET /models with the configured credentials.
func (c *Client) VerifyCredentials(ctx context.Context) error {
	if _, err := c.transport.ListModels(ctx); err != nil {
		return fmt.Errorf("verify credentials: %w", err)
	}
	return nil
}

// ListModels returns the model IDs available to the account.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	list, err := c.transport.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	return list.IDs(), nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.transport.CloseIdleConnections()
	c.logger.Info("sfnodes client closed")
	return nil
}

func resourceOf(item *Item) string {
	if item.Config == nil {
		return "unknown"
	}
	return string(item.Config.Resource())
}

func modelOfItem(item *Item) string {
	if item.Config == nil {
		return ""
	}
	return modelOf(item.Config)
}

// errorStatus is the metrics status label of a failed item.
func errorStatus(err error) errors.Kind {
	if kind := errors.KindOf(err); kind != "" {
		return kind
	}
	return "error"
}
