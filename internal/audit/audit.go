// audit — журнал событий безопасности.
//
// Запись выполняется в режиме fire-and-forget: сбой журнала логируется
// локально и никогда не влияет на исход запроса, который аудируется.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/morozkovaa/lingua-news/internal/models"
	"github.com/morozkovaa/lingua-news/internal/pkg/log"
	"github.com/morozkovaa/lingua-news/internal/storage"
)

const saveTimeout = 3 * time.Second

// Recorder пишет события безопасности в хранилище.
// Нулевой *Recorder безопасен: Record становится no-op.
type Recorder struct {
	store storage.AuditStorage
}

// New создаёт Recorder поверх хранилища аудита.
func New(store storage.AuditStorage) *Recorder {
	return &Recorder{store: store}
}

// Record добавляет событие в журнал асинхронно.
// ID и CreatedAt заполняются здесь; отмена родительского контекста
// не прерывает запись (у неё собственный таймаут).
func (r *Recorder) Record(ctx context.Context, event models.SecurityEvent) {
	if r == nil || r.store == nil {
		return
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.Severity == "" {
		event.Severity = models.SeverityLow
	}

	lg := log.From(ctx)

	go func() {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
		defer cancel()

		if err := r.store.SaveSecurityEvent(saveCtx, &event); err != nil {
			lg.Warn("audit_event_save_failed",
				slog.String("event_type", event.EventType),
				slog.String("err", err.Error()),
			)
		}
	}()
}
