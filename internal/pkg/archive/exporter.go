// Package archive exports the payment ledger as JSON Lines objects to S3.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/ChannelPass/app/models"
)

// CursorKey is the settings row holding the id of the last exported event.
const CursorKey = "ledger_archive_cursor"

const defaultBatchSize = 1000

// exportLag holds back recent rows. Ids are assigned at insert but rows become
// visible at commit, so a lower id can appear after a higher one was exported.
const exportLag = 5 * time.Minute

// Result describes one export run.
type Result struct {
	Objects []string `json:"objects"`
	Events  int      `json:"events"`
	Cursor  uint     `json:"cursor"`
}

// Exporter ships finalized ledger rows in id order. Each object is uploaded
// before the cursor moves, so a failed run is repeated from the same row.
type Exporter struct {
	db        *gorm.DB
	uploader  Uploader
	prefix    string
	batchSize int
	now       func() time.Time
}

func NewExporter(db *gorm.DB, uploader Uploader, prefix string) *Exporter {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "ledger"
	}
	return &Exporter{
		db:        db,
		uploader:  uploader,
		prefix:    prefix,
		batchSize: defaultBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run exports everything after the stored cursor.
func (e *Exporter) Run(ctx context.Context) (Result, error) {
	cursor, err := e.Cursor(ctx)
	if err != nil {
		return Result{}, err
	}
	res := Result{Cursor: cursor}
	cutoff := e.now().Add(-exportLag)

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var rows []models.PaymentEvent
		err := e.db.WithContext(ctx).
			Where("id > ?", res.Cursor).
			Order("id ASC").
			Limit(e.batchSize).
			Find(&rows).Error
		if err != nil {
			return res, fmt.Errorf("load ledger: %w", err)
		}

		// Rows still being processed or younger than the lag end the run;
		// they are picked up next time.
		n := 0
		for n < len(rows) && rows[n].ProcessingStatus != models.PaymentStatusUnseen && rows[n].CreatedAt.Before(cutoff) {
			n++
		}
		if n == 0 {
			break
		}
		batch := rows[:n]

		key, body, err := e.encode(batch)
		if err != nil {
			return res, err
		}
		if err := e.uploader.Upload(ctx, key, body, "application/x-ndjson"); err != nil {
			return res, err
		}
		last := batch[len(batch)-1].ID
		if err := e.saveCursor(ctx, last); err != nil {
			return res, err
		}

		log.Infof("[Archive] Exported %d ledger rows to %s", len(batch), key)
		res.Objects = append(res.Objects, key)
		res.Events += len(batch)
		res.Cursor = last

		if n < len(rows) || len(rows) < e.batchSize {
			break
		}
	}
	return res, nil
}

func (e *Exporter) encode(batch []models.PaymentEvent) (string, []byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range batch {
		if err := enc.Encode(&batch[i]); err != nil {
			return "", nil, fmt.Errorf("encode ledger row %d: %w", batch[i].ID, err)
		}
	}
	now := e.now()
	key := fmt.Sprintf("%s/%04d/%02d/%02d/payments-%010d-%010d.jsonl",
		e.prefix, now.Year(), int(now.Month()), now.Day(), batch[0].ID, batch[len(batch)-1].ID)
	return key, buf.Bytes(), nil
}

// Cursor returns the id of the last exported ledger row.
func (e *Exporter) Cursor(ctx context.Context) (uint, error) {
	var s models.Setting
	err := e.db.WithContext(ctx).Where("setting_key = ?", CursorKey).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load archive cursor: %w", err)
	}
	v, err := strconv.ParseUint(s.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("archive cursor %q: %w", s.Value, err)
	}
	return uint(v), nil
}

func (e *Exporter) saveCursor(ctx context.Context, id uint) error {
	s := models.Setting{Key: CursorKey, Value: strconv.FormatUint(uint64(id), 10), Type: "integer"}
	err := e.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "setting_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&s).Error
	if err != nil {
		return fmt.Errorf("save archive cursor: %w", err)
	}
	return nil
}
