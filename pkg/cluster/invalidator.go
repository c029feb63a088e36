// Package cluster propagates permission invalidation signals between
// Coffer nodes over NATS. A node publishes on the shared subject after a
// permission-affecting mutation; every other node marks its authorization
// cache outdated so the next resolution reloads from the store.
package cluster

import (
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/cofferdb/coffer/pkg/config"
	"github.com/cofferdb/coffer/pkg/interfaces"
)

// Outdater is the cache side of the invalidation protocol, satisfied by
// auth.UserManager.
type Outdater interface {
	Outdate()
}

// Invalidator connects a cache to the cluster invalidation subject
type Invalidator struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	subject string
	nodeID  string
	target  Outdater
	log     interfaces.Logger
}

// NewInvalidator connects to the NATS cluster described by cfg
func NewInvalidator(cfg config.ClusterConfig, target Outdater, log interfaces.Logger) (*Invalidator, error) {
	if target == nil {
		return nil, fmt.Errorf("invalidation target is required")
	}
	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = nats.NewInbox()
	}

	conn, err := nats.Connect(strings.Join(cfg.URLs, ","),
		nats.Name("coffer-auth-"+nodeID),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Invalidator{
		conn:    conn,
		subject: cfg.Subject,
		nodeID:  nodeID,
		target:  target,
		log:     log,
	}, nil
}

// Watch subscribes to the invalidation subject. Signals published by this
// node are ignored; every other signal outdates the cache.
func (i *Invalidator) Watch() error {
	sub, err := i.conn.Subscribe(i.subject, func(msg *nats.Msg) {
		origin := string(msg.Data)
		if origin == i.nodeID {
			return
		}
		i.log.Debug("permission change signalled by peer",
			map[string]interface{}{"origin": origin})
		i.target.Outdate()
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", i.subject, err)
	}
	i.sub = sub
	return nil
}

// PublishInvalidation tells the rest of the cluster that permissions
// changed on this node.
func (i *Invalidator) PublishInvalidation() error {
	if err := i.conn.Publish(i.subject, []byte(i.nodeID)); err != nil {
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	return nil
}

// Close drains the subscription and closes the connection
func (i *Invalidator) Close() {
	if i.sub != nil {
		_ = i.sub.Unsubscribe()
	}
	if i.conn != nil {
		i.conn.Close()
	}
}
