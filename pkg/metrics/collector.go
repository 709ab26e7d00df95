package metrics

import (
	"sync"
	"time"

	"github.com/cuemby/anvil/pkg/types"
)

// Source is the inventory the collector reads; storage.Store satisfies it
type Source interface {
	ListNodes() ([]*types.Node, error)
	ListGraphs() ([]*types.DeploymentGraph, error)
	ListTransactions() ([]*types.Transaction, error)
}

// Collector periodically refreshes inventory gauges from the store
type Collector struct {
	source   Source
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCollector creates a new metrics collector
func NewCollector(source Source, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Collector) collect() {
	err := c.collectNodeMetrics()
	if err == nil {
		err = c.collectGraphMetrics()
	}
	if err == nil {
		err = c.collectTransactionMetrics()
	}

	if err != nil {
		UpdateComponent(ComponentStore, false, err.Error())
		UpdateComponent(ComponentCollector, false, "store unavailable")
		return
	}
	UpdateComponent(ComponentStore, true, "")
	UpdateComponent(ComponentCollector, true, "")
}

func (c *Collector) collectNodeMetrics() error {
	nodes, err := c.source.ListNodes()
	if err != nil {
		return err
	}

	counts := make(map[string]int)
	for _, node := range nodes {
		counts[string(node.Status)]++
	}

	NodesTotal.Reset()
	for status, count := range counts {
		NodesTotal.WithLabelValues(status).Set(float64(count))
	}
	return nil
}

func (c *Collector) collectGraphMetrics() error {
	graphs, err := c.source.ListGraphs()
	if err != nil {
		return err
	}

	GraphsTotal.Set(float64(len(graphs)))
	return nil
}

func (c *Collector) collectTransactionMetrics() error {
	txs, err := c.source.ListTransactions()
	if err != nil {
		return err
	}

	counts := make(map[types.TransactionStatus]int)
	for _, tx := range txs {
		counts[tx.Status]++
	}

	TransactionsTotal.Reset()
	for status, count := range counts {
		TransactionsTotal.WithLabelValues(string(status)).Set(float64(count))
	}
	return nil
}
