package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/CrowderSoup/begtask/config"
	"github.com/CrowderSoup/begtask/database"
	"github.com/CrowderSoup/begtask/kanban"
)

const dispatchTimeout = 30 * time.Second

// UserLookup is the part of the data layer the notifier reads.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*database.User, error)
}

// WhatsAppSender posts messages to an HTTP function that relays them to
// WhatsApp.
type WhatsAppSender struct {
	endpoint string
	token    string
	client   *http.Client
}

func NewWhatsAppSender(cfg config.WhatsAppConfig) *WhatsAppSender {
	return &WhatsAppSender{
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (w *WhatsAppSender) Configured() bool {
	return w != nil && w.endpoint != ""
}

func (w *WhatsAppSender) Send(ctx context.Context, phone, message string) error {
	payload, err := json.Marshal(map[string]string{
		"telefone": phone,
		"mensagem": message,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal whatsapp payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call whatsapp endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("whatsapp endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}

// Notifier tells responsible users about changes to their tasks over the
// channels they enabled in their profile. Every send is best effort.
type Notifier struct {
	users    UserLookup
	whatsapp *WhatsAppSender
	mailer   Mailer
	pending  sync.WaitGroup
}

// NewNotifier wires the senders. whatsapp and mailer may be nil.
func NewNotifier(users UserLookup, whatsapp *WhatsAppSender, mailer Mailer) *Notifier {
	return &Notifier{users: users, whatsapp: whatsapp, mailer: mailer}
}

// TaskMoved implements kanban.Notifier.
func (n *Notifier) TaskMoved(ctx context.Context, ev kanban.MoveEvent) error {
	if ev.Task.ResponsibleID == nil {
		return nil
	}
	msg := fmt.Sprintf("A tarefa %q foi movida de %q para %q.", ev.Task.Title, ev.From.Title, ev.To.Title)
	return n.dispatch(ctx, *ev.Task.ResponsibleID, "Tarefa movida", msg)
}

// TaskAssigned tells a user a task now has them as responsible.
func (n *Notifier) TaskAssigned(ctx context.Context, task database.Task, boardTitle string) error {
	if task.ResponsibleID == nil {
		return nil
	}
	msg := fmt.Sprintf("Você é o responsável pela tarefa %q no quadro %q.", task.Title, boardTitle)
	if task.DueDate != nil {
		msg += fmt.Sprintf(" Entrega: %s.", task.DueDate.Format("02/01/2006"))
	}
	return n.dispatch(ctx, *task.ResponsibleID, "Nova tarefa atribuída", msg)
}

// TaskDeleted tells the responsible user a task is gone.
func (n *Notifier) TaskDeleted(ctx context.Context, task database.Task, boardTitle string) error {
	if task.ResponsibleID == nil {
		return nil
	}
	msg := fmt.Sprintf("A tarefa %q do quadro %q foi excluída.", task.Title, boardTitle)
	return n.dispatch(ctx, *task.ResponsibleID, "Tarefa excluída", msg)
}

// Go runs fn in the background and logs its error. Use Wait to drain.
func (n *Notifier) Go(what string, fn func(ctx context.Context) error) {
	n.pending.Add(1)
	go func() {
		defer n.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Printf("Warning: failed to send %s notification: %v", what, err)
		}
	}()
}

func (n *Notifier) Wait() {
	n.pending.Wait()
}

func (n *Notifier) dispatch(ctx context.Context, userID, subject, message string) error {
	user, err := n.users.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load responsible user: %w", err)
	}

	var errs []error
	if user.NotifyWhatsApp && user.Phone != "" && n.whatsapp.Configured() {
		if err := n.whatsapp.Send(ctx, user.Phone, message); err != nil {
			errs = append(errs, err)
		}
	}
	if user.NotifyEmail && n.mailer != nil {
		if err := n.mailer.Send(ctx, user.Email, "BegTask: "+subject, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
