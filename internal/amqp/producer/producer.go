package simpleproducer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/streadway/amqp"
)

var ErrNotConnected = errors.New("producer is not connected")

// Channel is the part of *amqp.Channel the producer needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Producer publishes JSON messages to a durable topic exchange named after the service.
type Producer struct {
	exchange string
	conn     *amqp.Connection
	channel  Channel
}

func New(exchange string, conn *amqp.Connection) *Producer {
	return &Producer{exchange: exchange, conn: conn}
}

// NewWithChannel uses an already opened channel.
func NewWithChannel(exchange string, channel Channel) *Producer {
	return &Producer{exchange: exchange, channel: channel}
}

func (p *Producer) Connect() error {
	if p.channel == nil {
		if p.conn == nil {
			return ErrNotConnected
		}

		channel, err := p.conn.Channel()
		if err != nil {
			return fmt.Errorf("cannot open amqp channel, %w", err)
		}

		p.channel = channel
	}

	if err := p.channel.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("cannot declare exchange %s, %w", p.exchange, err)
	}

	return nil
}

func (p *Producer) Publish(ctx context.Context, routingKey string, body []byte) error {
	if p.channel == nil {
		return ErrNotConnected
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	err := p.channel.Publish(p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("cannot publish %s, %w", routingKey, err)
	}

	return nil
}

func (p *Producer) Close() error {
	var err error

	if p.channel != nil {
		err = p.channel.Close()
	}

	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	return err
}
