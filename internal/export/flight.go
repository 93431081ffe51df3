package export

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/23skdu/granite-verify/internal/logger"
	"github.com/23skdu/granite-verify/internal/metrics"
)

// DefaultPort is the conventional Flight data port of the collector.
const DefaultPort = 3000

// Publisher ships record batches to an Arrow Flight endpoint.
type Publisher struct {
	client flight.Client
	addr   string
}

// NewPublisher creates a publisher for the given collector address.
func NewPublisher(host string, port int) *Publisher {
	if port <= 0 {
		port = DefaultPort
	}
	return &Publisher{addr: fmt.Sprintf("%s:%d", host, port)}
}

// Connect dials the Flight endpoint.
func (p *Publisher) Connect() error {
	client, err := flight.NewClientWithMiddleware(p.addr, nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to create Flight client: %w", err)
	}
	p.client = client
	logger.Log.Info("flight publisher connected", "addr", p.addr)
	return nil
}

// Close disconnects from the collector.
func (p *Publisher) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

// Publish sends one record under the given descriptor path.
func (p *Publisher) Publish(ctx context.Context, path string, rec arrow.Record) error {
	if p.client == nil {
		return fmt.Errorf("publisher not connected, call Connect() first")
	}
	start := time.Now()

	stream, err := p.client.DoPut(ctx)
	if err != nil {
		return fmt.Errorf("DoPut failed: %w", err)
	}

	wr := flight.NewRecordWriter(stream, ipc.WithSchema(rec.Schema()))
	wr.SetFlightDescriptor(&flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{path},
	})
	if err := wr.Write(rec); err != nil {
		wr.Close()
		return fmt.Errorf("record write failed: %w", err)
	}
	if err := wr.Close(); err != nil {
		return fmt.Errorf("writer close failed: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("stream close failed: %w", err)
	}

	metrics.RecordExportBatch(time.Since(start))
	logger.Log.Debug("record published", "path", path, "rows", rec.NumRows())
	return nil
}
