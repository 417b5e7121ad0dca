package publish

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DryRun logs posts instead of sending them.
type DryRun struct {
	log logrus.FieldLogger

	mu sync.Mutex
	n  int
}

func NewDryRun(log logrus.FieldLogger) *DryRun {
	return &DryRun{log: log}
}

func (d *DryRun) Post(_ context.Context, account, text string, reply *Reply) (Receipt, error) {
	d.mu.Lock()
	d.n++
	n := d.n
	d.mu.Unlock()

	entry := d.log.WithField("account", account)
	if reply != nil {
		entry = entry.WithField("reply_to", reply.Parent.URI)
	}
	entry.Infof("[dry-run] %s", text)
	return Receipt{
		URI:      fmt.Sprintf("dry-run://%s/%d", account, n),
		CID:      fmt.Sprintf("dry-run-%d", n),
		Text:     text,
		PostedAt: time.Now(),
	}, nil
}
