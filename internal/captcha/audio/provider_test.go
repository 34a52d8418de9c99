package audio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name  string
	calls int
	text  string
	conf  float64
	err   error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Transcribe(ctx context.Context, data []byte, format Format) (Transcription, error) {
	p.calls++
	if p.err != nil {
		return Transcription{}, p.err
	}
	return Transcription{Text: p.text, Confidence: p.conf}, nil
}

func TestOrderByPriorityReordersAndAppendsUnmatched(t *testing.T) {
	a := &fakeProvider{name: "a"}
	b := &fakeProvider{name: "b"}
	c := &fakeProvider{name: "c"}

	ordered := OrderByPriority([]Provider{a, b, c}, []string{"c", "a"})
	require.Equal(t, []string{"c", "a", "b"}, names(ordered))
}

func TestOrderByPriorityNoOpWithoutPriorityList(t *testing.T) {
	a := &fakeProvider{name: "a"}
	ordered := OrderByPriority([]Provider{a}, nil)
	require.Equal(t, []string{"a"}, names(ordered))
}

func TestRateLimitedProviderBlocksBurstBeyondCapacity(t *testing.T) {
	inner := &fakeProvider{name: "p", text: "ok", conf: 0.9}
	limited := newRateLimitedProvider(inner, 1)

	_, err := limited.Transcribe(context.Background(), nil, FormatWAV)
	require.NoError(t, err)

	_, err = limited.Transcribe(context.Background(), nil, FormatWAV)
	require.ErrorIs(t, err, errRateLimited)
}

func names(providers []Provider) []string {
	out := make([]string, len(providers))
	for i, p := range providers {
		out[i] = p.Name()
	}
	return out
}
