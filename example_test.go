package ordesk_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ordesk/ordesk"
	"github.com/ordesk/ordesk/pkg/domain"
)

// Example wires the engine with an in-memory store and a stub backend,
// then processes one customer turn.
func Example() {
	engine, err := ordesk.New(testConfig(),
		ordesk.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		ordesk.WithProviders(stubProviders()))
	if err != nil {
		fmt.Println("engine:", err)
		return
	}
	defer engine.Close()

	res, err := engine.Handle(context.Background(), "user-1", domain.BufferedFragment{Text: "hi, do you sell sneakers?"})
	if err != nil {
		fmt.Println("turn:", err)
		return
	}
	fmt.Printf("%s (%s)\n", res.Reply, res.FinalState)
	// Output: How can I help? (discovery)
}
