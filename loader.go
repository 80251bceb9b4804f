package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RowFailure records one skipped row and the data it carried.
type RowFailure struct {
	RowIndex int
	Err      error
	Values   []Value
}

// loadRow is a transformed row tagged with its index in the source read.
type loadRow struct {
	Index  int
	Values TransformedRow
}

// LoadResult is the outcome of loading one table.
type LoadResult struct {
	Inserted   int
	Failed     []RowFailure
	BatchSizes []int
}

// batchLoader inserts rows one at a time in fixed-size chunks. A failed row
// never affects its siblings; each insert commits on its own.
type batchLoader struct {
	target     TargetStore
	workers    int
	rowTimeout time.Duration
	log        *zap.SugaredLogger
	metrics    *migrationMetrics
}

// chunkRows partitions rows into consecutive chunks of at most size rows.
func chunkRows(rows []loadRow, size int) [][]loadRow {
	if size <= 0 {
		size = defaultBatchSize
	}
	var chunks [][]loadRow
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}

// LoadTable truncates the target table and then inserts rows, so a table can
// be reloaded any number of times without duplicate keys.
func (l *batchLoader) LoadTable(ctx context.Context, table string, columns []string, rows []loadRow, batchSize int) (LoadResult, error) {
	if err := l.target.Exec(ctx, truncateTableSQL(table)); err != nil {
		return LoadResult{}, fmt.Errorf("truncate %s: %w", table, err)
	}
	return l.InsertBatch(ctx, table, columns, rows, batchSize)
}

// InsertBatch loads rows into table. It only returns an error when ctx is
// cancelled or the target became unavailable; the partial result is still
// returned and rows the cancellation cut off are not counted as failures.
func (l *batchLoader) InsertBatch(ctx context.Context, table string, columns []string, rows []loadRow, batchSize int) (LoadResult, error) {
	var res LoadResult
	workers := max(l.workers, 1)

	chunks := chunkRows(rows, batchSize)
	for n, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("%s: stopped before batch %d/%d: %w", table, n+1, len(chunks), err)
		}
		start := time.Now()

		errs := make([]error, len(chunk))
		var g errgroup.Group
		g.SetLimit(workers)
		for i := range chunk {
			g.Go(func() error {
				errs[i] = l.insertOne(ctx, table, columns, chunk[i].Values)
				return nil
			})
		}
		_ = g.Wait()

		inserted, interrupted := 0, 0
		var fatal error
		for i, err := range errs {
			if err == nil {
				inserted++
				continue
			}
			// Rows cut off by run cancellation were never attempted.
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				interrupted++
				continue
			}
			if fatal == nil && isFatalRunError(err) {
				fatal = err
			}
			f := RowFailure{
				RowIndex: chunk[i].Index,
				Err:      fmt.Errorf("%w: %w", ErrRowInsert, err),
				Values:   chunk[i].Values,
			}
			res.Failed = append(res.Failed, f)
			logWarn(l.log, "%s: row %d insert failed: %v; data: %s", table, f.RowIndex, err, rowJSON(columns, f.Values))
		}
		res.Inserted += inserted
		res.BatchSizes = append(res.BatchSizes, len(chunk))

		if l.metrics != nil {
			l.metrics.BatchDuration.Observe(time.Since(start).Seconds())
			l.metrics.RowsInserted.WithLabelValues(table).Add(float64(inserted))
			l.metrics.RowsFailed.WithLabelValues(table, "insert").Add(float64(len(chunk) - inserted - interrupted))
		}
		l.log.Infof("  %s: batch %d/%d: %d inserted, %d failed", table, n+1, len(chunks), inserted, len(chunk)-inserted-interrupted)
		if fatal != nil {
			return res, fatal
		}
		if interrupted > 0 {
			return res, fmt.Errorf("%s: stopped during batch %d/%d, %d row(s) not attempted: %w", table, n+1, len(chunks), interrupted, ctx.Err())
		}
	}
	return res, nil
}

func (l *batchLoader) insertOne(ctx context.Context, table string, columns []string, values TransformedRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.rowTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.rowTimeout)
		defer cancel()
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v.Arg()
	}
	return l.target.InsertRow(ctx, table, columns, args)
}

// rowJSON renders a row as a JSON object in column order for the run log.
func rowJSON(columns []string, values []Value) string {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		name := fmt.Sprintf("col%d", i)
		if i < len(columns) {
			name = columns[i]
		}
		k, _ := json.Marshal(name)
		b.Write(k)
		b.WriteByte(':')
		if enc, err := json.Marshal(v); err == nil {
			b.Write(enc)
		} else {
			b.WriteString("null")
		}
	}
	b.WriteByte('}')
	return b.String()
}
