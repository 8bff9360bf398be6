package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/codegenie/apiserver/config"
	"github.com/codegenie/apiserver/internal/db"
	"github.com/codegenie/apiserver/internal/lock"
	"github.com/codegenie/apiserver/internal/logging"
	"github.com/codegenie/apiserver/internal/mail"
	"github.com/codegenie/apiserver/internal/mq"
	"github.com/codegenie/apiserver/internal/store"
)

const memoryQueueSize = 64

// closers releases resources in reverse order of acquisition.
type closers []func() error

func (c *closers) add(fn func() error) {
	*c = append(*c, fn)
}

func (c closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenStores connects the configured backend and locker. The returned
// close function releases both.
func OpenStores(ctx context.Context, cfg config.Config, log logging.Logger) (*store.Stores, func() error, error) {
	var res closers

	backend, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	res.add(backend.Close)

	var locker lock.Locker
	switch cfg.Lock.Backend {
	case "", "local":
		locker = lock.NewLocalLocker()
	case "redis":
		client, err := lock.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			_ = res.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		res.add(client.Close)
		locker = lock.NewRedisLocker(client, cfg.Lock.TTL, cfg.Lock.RetryInterval)
	default:
		_ = res.Close()
		return nil, nil, fmt.Errorf("unsupported lock backend %q", cfg.Lock.Backend)
	}

	return store.New(backend, locker, log), res.Close, nil
}

// OpenQueue connects the broker named by cfg.Mail.Transport.
func OpenQueue(ctx context.Context, cfg config.Config) (*mq.MQ, error) {
	switch cfg.Mail.Transport {
	case "memory":
		return mq.New(mq.NewMemoryBackend(memoryQueueSize)), nil
	case "rabbitmq":
		client, err := mq.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		return mq.New(client), nil
	case "pubsub":
		client, err := mq.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("connect pubsub: %w", err)
		}
		return mq.New(client), nil
	default:
		return nil, fmt.Errorf("mail transport %q has no queue", cfg.Mail.Transport)
	}
}

// newMailer returns the OTP mailer for the configured transport and, for
// queued transports, the queue it publishes to. The queue is nil when
// mail is disabled.
func newMailer(ctx context.Context, cfg config.Config, log logging.Logger) (mail.Mailer, *mq.MQ, error) {
	switch cfg.Mail.Transport {
	case "", "smtp":
		if !cfg.SMTP.Enabled() {
			log.Warn(ctx, "SMTP credentials not set, otp mails are disabled")
		}
		return mail.NewSMTPMailer(cfg.SMTP), nil, nil
	case "memory", "rabbitmq", "pubsub":
		// The in-process worker delivers over this server's SMTP settings,
		// so without them nothing would ever leave the queue.
		if cfg.Mail.Transport == "memory" && !cfg.SMTP.Enabled() {
			log.Warn(ctx, "SMTP credentials not set, otp mails are disabled")
			return mail.NopMailer{}, nil, nil
		}
		queue, err := OpenQueue(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return mail.NewQueueMailer(queue, cfg.Mail.Channel), queue, nil
	default:
		return nil, nil, fmt.Errorf("unsupported mail transport %q", cfg.Mail.Transport)
	}
}
