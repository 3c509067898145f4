// Package notify implements the Notifier (Mailer): a bounded mail queue
// drained by a single background worker, per spec §4.9.
package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/netixx/flexsentry/internal/metrics"
	"github.com/netixx/flexsentry/internal/xlog"
)

// SendFunc dials out and transmits a rendered message. The default
// implementation opens a fresh connection per call via net/smtp, matching
// the "connection is not reused across messages" requirement of spec
// §4.9.
type SendFunc func(addr, from string, to []string, msg []byte) error

func defaultSend(addr, from string, to []string, msg []byte) error {
	return smtp.SendMail(addr, nil, from, to, msg)
}

// queueCapacity bounds the mail queue; Enqueue blocks once full rather
// than growing without bound.
const queueCapacity = 256

// Mailer is the Notifier: it accepts messages via Enqueue and transmits
// them one at a time from a single background worker started by Run.
type Mailer struct {
	cfg   *Config
	send  SendFunc
	queue chan *Message
	done  chan struct{}
}

// MailerOption customizes a Mailer built by New.
type MailerOption func(*Mailer)

// WithSendFunc overrides the SMTP transport, primarily for tests.
func WithSendFunc(fn SendFunc) MailerOption {
	return func(m *Mailer) { m.send = fn }
}

// New creates a Mailer. Call Run in its own goroutine to start the
// background worker, and Terminate to drain and stop it.
func New(cfg *Config, opts ...MailerOption) *Mailer {
	m := &Mailer{
		cfg:   cfg,
		send:  defaultSend,
		queue: make(chan *Message, queueCapacity),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Enqueue queues a new mail for sending. A nil message is ignored; use
// Terminate to signal shutdown.
func (m *Mailer) Enqueue(msg *Message) {
	if msg == nil {
		return
	}
	m.queue <- msg
	metrics.MailQueueDepth.Set(float64(len(m.queue)))
}

// Run drains the queue until a sentinel (nil) is received or ctx is
// canceled, sending each message in turn. It is meant to be run in its
// own goroutine for the lifetime of the application.
func (m *Mailer) Run(ctx context.Context) {
	log := xlog.FromContext(ctx, "notifier")
	log.Info().Msg("mailer started")
	defer close(m.done)

	for {
		select {
		case msg := <-m.queue:
			metrics.MailQueueDepth.Set(float64(len(m.queue)))
			if msg == nil {
				log.Info().Msg("mailer terminated")
				return
			}
			m.sendMail(ctx, msg)
		case <-ctx.Done():
			log.Info().Msg("mailer context canceled")
			return
		}
	}
}

// Terminate enqueues the shutdown sentinel and blocks until Run has
// drained the queue and exited.
func (m *Mailer) Terminate() {
	m.queue <- nil
	<-m.done
}

func (m *Mailer) sendMail(ctx context.Context, msg *Message) {
	log := xlog.FromContext(ctx, "notifier")

	if !m.cfg.SendMails {
		log.Debug().Str("subject", msg.Subject).Msg("mail sending disabled, not sent")
		return
	}

	to := msg.To
	if m.cfg.Mock {
		to = m.cfg.AdminAddrs
	}

	fromHeader := fmt.Sprintf("%s <%s>", m.cfg.FromName, m.cfg.FromAddr)
	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)

	log.Debug().Str("subject", msg.Subject).Strs("to", to).Msg("trying to send mail")
	if err := m.send(addr, m.cfg.FromAddr, to, msg.Bytes(fromHeader)); err != nil {
		log.Warn().Err(err).Msg("error while sending mail")
		return
	}
	log.Info().Strs("to", to).Msg("mail sent")
}
