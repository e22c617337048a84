package loadevents

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/gridslice/internal/dataset"
	"github.com/mohammed-shakir/gridslice/internal/grid"
)

func TestFromLoad(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	ev := FromLoad(dataset.LoadInfo{
		Key:      dataset.Key{Year: 2015, Month: 9, Res: grid.Res10},
		Bytes:    grid.Res10.FullSetSize(),
		Duration: 1500 * time.Millisecond,
		Reload:   true,
	}, now)
	require.Equal(t, Event{
		Year: 2015, Month: 9, Res: 10,
		Bytes:      grid.Res10.FullSetSize(),
		DurationMs: 1500,
		Reload:     true,
		TS:         now.UTC(),
	}, ev)
}

func TestPublisher_SendsLoadEvents(t *testing.T) {
	prod := mocks.NewAsyncProducer(t, ProducerConfig())
	prod.ExpectInputWithCheckerFunctionAndSucceed(func(b []byte) error {
		var ev Event
		if err := json.Unmarshal(b, &ev); err != nil {
			return err
		}
		if ev.Year != 2010 || ev.Month != 6 || ev.Res != 4 || ev.DurationMs != 20 {
			return fmt.Errorf("unexpected event %+v", ev)
		}
		return nil
	})
	prod.ExpectInputAndFail(errors.New("broker down"))

	p := newPublisher(prod, "dataset-loads", 4, nil)
	p.DatasetLoaded(dataset.LoadInfo{
		Key:      dataset.Key{Year: 2010, Month: 6, Res: grid.Res4},
		Bytes:    grid.Res4.FullSetSize(),
		Duration: 20 * time.Millisecond,
	})
	require.True(t, p.Publish(Event{Year: 2011, Month: 1, Res: 1}))
	require.NoError(t, p.Close())
}

func TestPublisher_DropsWhenQueueFull(t *testing.T) {
	prod := mocks.NewAsyncProducer(t, ProducerConfig())
	p := &Publisher{topic: "t", events: make(chan Event, 1), prod: prod}
	require.True(t, p.Publish(Event{Year: 1}))
	require.False(t, p.Publish(Event{Year: 2}))
	require.NoError(t, prod.Close())
}

var _ sarama.AsyncProducer = (*mocks.AsyncProducer)(nil)
