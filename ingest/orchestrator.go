package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Orchestrator executes the three-stage pipeline for one task:
// initialize the source client, execute the source, transform the raw
// output to Records, and deliver to the destination if one is bound.
//
// Instances are cached per task id by the manager so repeated triggers
// reuse the same source/destination instances; some sources hold an
// authenticated client across calls.
type Orchestrator struct {
	taskID      string
	source      Source
	transformer Transformer
	destination Destination // nil for transform-only tasks
	bus         *Bus
	logger      *zap.SugaredLogger
}

// NewOrchestrator binds a pipeline to one task's plugin instances.
func NewOrchestrator(taskID string, source Source, transformer Transformer, destination Destination, bus *Bus, logger *zap.SugaredLogger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Orchestrator{
		taskID:      taskID,
		source:      source,
		transformer: transformer,
		destination: destination,
		bus:         bus,
		logger:      logger.With("task_id", taskID),
	}
}

// Execute drives one pipeline invocation and returns its terminal
// status. Every code path, including panics anywhere in the pipeline,
// emits exactly one TASK_COMPLETED or TASK_FAILED event before
// returning.
func (o *Orchestrator) Execute(ctx context.Context, payload map[string]any) (status *Status) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Errorw("Pipeline panicked", "panic", r)
			status = Failure(500, fmt.Sprintf("unexpected error during pipeline execution: %v", r))
		}
		o.emitTerminal(status)
	}()

	// Configuration errors fail before any I/O.
	if o.source == nil || o.transformer == nil {
		return Failure(400, "pipeline not configured: source and transformer are required")
	}

	if err := o.source.InitClient(ctx); err != nil {
		o.logger.Errorw("Source client initialization failed", "error", err)
		return Failuref(500, "source client initialization failed: %v", err)
	}

	srcStatus, err := o.source.Execute(ctx, payload)
	if err != nil {
		o.logger.Errorw("Source execution failed", "error", err)
		return Failuref(500, "source execution failed: %v", err)
	}
	if srcStatus == nil {
		return Failure(500, "source returned no status")
	}
	if !srcStatus.Success {
		// Propagate the source's own message and data unchanged.
		return srcStatus
	}

	// One timestamp per run: every record from this invocation carries
	// identical fetch provenance.
	fetchedAt := time.Now().UTC()
	rawItems := o.extractRawItems(srcStatus.Data)

	o.bus.Publish(EventDataFetched, o.taskID, map[string]any{
		DataKeyItems: len(rawItems),
		"fetched_at": fetchedAt,
	})

	transformPayload := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		transformPayload[k] = v
	}
	transformPayload["fetchedAt"] = fetchedAt

	records, err := o.transformer(ctx, rawItems, transformPayload)
	if err != nil {
		o.logger.Errorw("Transform failed", "error", err)
		return Failuref(500, "transform failed: %v", err)
	}
	for i := range records {
		records[i].FetchedAt = fetchedAt
	}

	o.bus.Publish(EventDataTransformed, o.taskID, map[string]any{
		"records": len(records),
	})

	if len(records) == 0 {
		// "Crawled nothing new" is a normal outcome for incremental
		// sources; delivery is skipped entirely.
		o.logger.Infow("Transform produced no records, skipping delivery")
		return OKWithData("no records produced", map[string]any{
			DataKeyItemsProcessed: 0,
		})
	}

	if o.destination == nil {
		return OKWithData("records transformed (no destination configured)", map[string]any{
			DataKeyItemsProcessed: len(records),
		})
	}

	dstStatus, err := o.destination.ProcessData(ctx, records)
	if err != nil {
		o.logger.Errorw("Destination delivery failed", "error", err)
		return &Status{
			Success: false,
			Code:    500,
			Message: fmt.Sprintf("destination delivery failed: %v", err),
			Data:    map[string]any{DataKeyItemsProcessed: 0},
		}
	}
	if dstStatus == nil || !dstStatus.Success {
		msg := "destination reported failure"
		code := 500
		var data map[string]any
		if dstStatus != nil {
			msg = dstStatus.Message
			code = dstStatus.Code
			data = dstStatus.Data
		}
		if data == nil {
			data = map[string]any{}
		}
		// Delivery never partially counts in the core's bookkeeping;
		// partial-failure detail belongs in the destination's status.
		data[DataKeyItemsProcessed] = 0
		return &Status{Success: false, Code: code, Message: msg, Data: data}
	}

	o.bus.Publish(EventDataProcessed, o.taskID, map[string]any{
		"records": len(records),
	})

	return OKWithData("records delivered", map[string]any{
		DataKeyItemsProcessed: len(records),
	})
}

// extractRawItems pulls the raw item array out of a successful source
// status: prefer the nested "items" array, else wrap a scalar "items"
// or "result" value, else zero items. Each case is logged, not erred.
func (o *Orchestrator) extractRawItems(data map[string]any) []any {
	if data == nil {
		o.logger.Debugw("Source returned no data, treating as zero items")
		return nil
	}

	if v, ok := data[DataKeyItems]; ok && v != nil {
		if arr, ok := v.([]any); ok {
			o.logger.Debugw("Source returned item array", "count", len(arr))
			return arr
		}
		o.logger.Debugw("Source returned scalar items value, wrapping")
		return []any{v}
	}

	if v, ok := data[DataKeyResult]; ok && v != nil {
		o.logger.Debugw("Source returned single result, wrapping")
		return []any{v}
	}

	o.logger.Debugw("Source data carried no items, treating as zero items")
	return nil
}

// emitTerminal publishes the single terminal event for an invocation.
func (o *Orchestrator) emitTerminal(status *Status) {
	if status == nil {
		status = Failure(500, "pipeline returned no status")
	}
	if status.Success {
		o.bus.Publish(EventTaskCompleted, o.taskID, status)
	} else {
		o.bus.Publish(EventTaskFailed, o.taskID, status)
	}
}
