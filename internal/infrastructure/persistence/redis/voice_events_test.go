package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xpbot/xpbot/internal/application/command"
	"github.com/xpbot/xpbot/internal/domain/shared"
)

func TestDecodeVoiceEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    command.VoiceEvent
		wantErr error
	}{
		{
			name:    "join",
			payload: `{"guild_id":"123456789012345678","user_id":"444444444444444444","kind":"join","timestamp":"2024-05-01T18:00:00Z"}`,
			want: command.VoiceEvent{
				GuildID:   guild,
				UserID:    member.UserID,
				Kind:      command.VoiceJoin,
				Timestamp: time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC),
			},
		},
		{
			name:    "not json",
			payload: `join`,
			wantErr: shared.ErrInvalidFormat,
		},
		{
			name:    "bad guild",
			payload: `{"guild_id":"x","user_id":"1","kind":"join","timestamp":"2024-05-01T18:00:00Z"}`,
			wantErr: shared.ErrInvalidID,
		},
		{
			name:    "unknown kind",
			payload: `{"guild_id":"1","user_id":"1","kind":"mute","timestamp":"2024-05-01T18:00:00Z"}`,
			wantErr: shared.ErrInvalidInput,
		},
		{
			name:    "missing timestamp",
			payload: `{"guild_id":"1","user_id":"1","kind":"leave"}`,
			wantErr: shared.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeVoiceEvent(tt.payload)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVoiceEventSubscriber_DeliversInOrder(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan command.VoiceEvent, 4)
	sub := NewVoiceEventSubscriber(cache, func(_ context.Context, ev command.VoiceEvent) error {
		received <- ev
		return nil
	}, nil)

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- sub.Run(runCtx) }()

	select {
	case <-sub.Ready():
	case <-ctx.Done():
		t.Fatal("subscription not confirmed")
	}

	t0 := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	join := command.VoiceEvent{GuildID: guild, UserID: member.UserID, Kind: command.VoiceJoin, Timestamp: t0}
	leave := command.VoiceEvent{GuildID: guild, UserID: member.UserID, Kind: command.VoiceLeave, Timestamp: t0.Add(time.Hour)}

	require.NoError(t, cache.PublishVoiceEvent(ctx, join))
	require.NoError(t, cache.Client().Publish(ctx, ChannelVoiceEvents, "garbage").Err())
	require.NoError(t, cache.PublishVoiceEvent(ctx, leave))

	for _, want := range []command.VoiceEvent{join, leave} {
		select {
		case got := <-received:
			assert.Equal(t, want, got)
		case <-ctx.Done():
			t.Fatal("voice event not delivered")
		}
	}

	stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("subscriber did not stop")
	}
}

func TestVoiceEventSubscriber_MembersDoNotBlockEachOther(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	release := make(chan struct{})
	handled := make(chan command.VoiceEvent, 4)
	sub := NewVoiceEventSubscriber(cache, func(_ context.Context, ev command.VoiceEvent) error {
		if ev.UserID == member.UserID && ev.Kind == command.VoiceJoin {
			<-release
		}
		handled <- ev
		return nil
	}, nil)

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- sub.Run(runCtx) }()
	select {
	case <-sub.Ready():
	case <-ctx.Done():
		t.Fatal("subscription not confirmed")
	}

	t0 := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	slowJoin := command.VoiceEvent{GuildID: guild, UserID: member.UserID, Kind: command.VoiceJoin, Timestamp: t0}
	slowLeave := command.VoiceEvent{GuildID: guild, UserID: member.UserID, Kind: command.VoiceLeave, Timestamp: t0.Add(time.Minute)}
	otherJoin := command.VoiceEvent{GuildID: guild, UserID: 555555555555555555, Kind: command.VoiceJoin, Timestamp: t0}

	require.NoError(t, cache.PublishVoiceEvent(ctx, slowJoin))
	require.NoError(t, cache.PublishVoiceEvent(ctx, slowLeave))
	require.NoError(t, cache.PublishVoiceEvent(ctx, otherJoin))

	select {
	case got := <-handled:
		assert.Equal(t, otherJoin, got)
	case <-time.After(2 * time.Second):
		t.Fatal("member event waited behind another member's handler")
	}

	close(release)
	for _, want := range []command.VoiceEvent{slowJoin, slowLeave} {
		select {
		case got := <-handled:
			assert.Equal(t, want, got)
		case <-ctx.Done():
			t.Fatal("voice event not delivered")
		}
	}

	stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("subscriber did not stop")
	}
}
