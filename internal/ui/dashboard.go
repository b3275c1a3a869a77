package ui

import (
	"context"
	"fmt"
	"time"

	"ndax_bridge/internal/domain"

	"github.com/mum4k/termdash"
	"github.com/mum4k/termdash/cell"
	"github.com/mum4k/termdash/container"
	"github.com/mum4k/termdash/container/grid"
	"github.com/mum4k/termdash/keyboard"
	"github.com/mum4k/termdash/linestyle"
	"github.com/mum4k/termdash/terminal/tcell"
	"github.com/mum4k/termdash/terminal/terminalapi"
	"github.com/mum4k/termdash/widgets/linechart"
	"github.com/mum4k/termdash/widgets/text"
)

const (
	redrawInterval = 250 * time.Millisecond
	maxHistorySize = 120
)

// Level1Dashboard shows the latest level1 quotes and a bid/ask chart of
// one instrument.
type Level1Dashboard struct {
	chartInstrument int64
	history         *History

	table  *text.Text
	chart  *linechart.LineChart
	status *text.Text
}

// NewLevel1Dashboard creates a dashboard charting chartInstrument.
func NewLevel1Dashboard(chartInstrument int64) *Level1Dashboard {
	return &Level1Dashboard{
		chartInstrument: chartInstrument,
		history:         NewHistory(maxHistorySize),
	}
}

// InitWidgets creates the termdash widgets.
func (d *Level1Dashboard) InitWidgets() error {
	table, err := text.New(text.WrapAtWords())
	if err != nil {
		return fmt.Errorf("failed to create quote table: %v", err)
	}
	d.table = table

	chart, err := linechart.New(
		linechart.AxesCellOpts(cell.FgColor(cell.ColorRed)),
		linechart.YLabelCellOpts(cell.FgColor(cell.ColorGreen)),
		linechart.XLabelCellOpts(cell.FgColor(cell.ColorGreen)),
	)
	if err != nil {
		return fmt.Errorf("failed to create line chart: %v", err)
	}
	d.chart = chart

	status, err := text.New()
	if err != nil {
		return fmt.Errorf("failed to create status line: %v", err)
	}
	d.status = status
	return d.status.Write("Waiting for quotes... press q to quit")
}

func tickColor(t Tick) cell.Color {
	switch t {
	case TickUp:
		return cell.ColorGreen
	case TickDown:
		return cell.ColorRed
	default:
		return cell.ColorDefault
	}
}

// Apply records a quote and redraws the widgets.
func (d *Level1Dashboard) Apply(q domain.BroadcastQuote) error {
	d.history.Add(q)

	d.table.Reset()
	if err := d.table.Write(fmt.Sprintf("%-10s %14s %14s %14s %12s\n", "Ticker", "Bid", "Ask", "Last", "Qty")); err != nil {
		return err
	}
	for _, row := range d.history.Rows() {
		quote := row.Quote
		if err := d.table.Write(fmt.Sprintf("%-10s ", quote.TickerSymbol)); err != nil {
			return err
		}
		if err := d.table.Write(fmt.Sprintf("%14.2f ", quote.BestBid), text.WriteCellOpts(cell.FgColor(tickColor(row.BidTick)))); err != nil {
			return err
		}
		if err := d.table.Write(fmt.Sprintf("%14.2f ", quote.BestAsk), text.WriteCellOpts(cell.FgColor(tickColor(row.AskTick)))); err != nil {
			return err
		}
		if err := d.table.Write(fmt.Sprintf("%14.2f %12.6f\n", quote.LastTradePrice, quote.LastTradeQty)); err != nil {
			return err
		}
	}

	bids, asks := d.history.Series(d.chartInstrument)
	if len(bids) > 0 {
		if err := d.chart.Series("bid", bids, linechart.SeriesCellOpts(cell.FgColor(cell.ColorGreen))); err != nil {
			return err
		}
		if err := d.chart.Series("ask", asks, linechart.SeriesCellOpts(cell.FgColor(cell.ColorRed))); err != nil {
			return err
		}
	}

	d.status.Reset()
	return d.status.Write(fmt.Sprintf("Last update %s  |  press q to quit",
		time.UnixMilli(q.TimestampMs).Format("15:04:05")))
}

func (d *Level1Dashboard) layout() ([]container.Option, error) {
	builder := grid.New()
	builder.Add(
		grid.RowHeightPerc(35,
			grid.Widget(d.table,
				container.Border(linestyle.Light),
				container.BorderTitle(" Level1 "),
			),
		),
		grid.RowHeightPerc(55,
			grid.Widget(d.chart,
				container.Border(linestyle.Light),
				container.BorderTitle(fmt.Sprintf(" Bid / Ask (instrument %d) ", d.chartInstrument)),
			),
		),
		grid.RowHeightPerc(10,
			grid.Widget(d.status, container.Border(linestyle.Light)),
		),
	)
	return builder.Build()
}

// Run draws the dashboard and applies quotes from in until ctx is
// cancelled, in is closed or q is pressed.
func (d *Level1Dashboard) Run(ctx context.Context, in <-chan domain.BroadcastQuote) error {
	t, err := tcell.New(tcell.ColorMode(terminalapi.ColorMode256))
	if err != nil {
		return fmt.Errorf("failed to initialize terminal: %v", err)
	}
	defer t.Close()

	gridOpts, err := d.layout()
	if err != nil {
		return fmt.Errorf("failed to build grid layout: %v", err)
	}
	c, err := container.New(t, gridOpts...)
	if err != nil {
		return fmt.Errorf("failed to create root container: %v", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case q, ok := <-in:
				if !ok {
					d.status.Reset()
					d.status.Write("Feed closed, press q to quit")
					return
				}
				d.Apply(q)
			}
		}
	}()

	quitter := func(k *terminalapi.Keyboard) {
		if k.Key == 'q' || k.Key == 'Q' || k.Key == keyboard.KeyEsc {
			cancel()
		}
	}
	return termdash.Run(ctx, t, c, termdash.KeyboardSubscriber(quitter), termdash.RedrawInterval(redrawInterval))
}
