package power

import (
	"context"
	"errors"
	"testing"

	"github.com/genricoloni/raspdac/internal/domain/mocks"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func TestFallback_FirstSuccessWins(t *testing.T) {
	ctrl := gomock.NewController(t)
	first := mocks.NewMockPowerCommander(ctrl)
	second := mocks.NewMockPowerCommander(ctrl)

	first.EXPECT().Shutdown(gomock.Any()).Return(nil)
	// second is never asked

	chain := NewFallback(zap.NewNop())
	chain.Add("first", first)
	chain.Add("second", second)

	if err := chain.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}
}

func TestFallback_FallsThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	first := mocks.NewMockPowerCommander(ctrl)
	second := mocks.NewMockPowerCommander(ctrl)

	gomock.InOrder(
		first.EXPECT().Reboot(gomock.Any()).Return(errors.New("socket down")),
		second.EXPECT().Reboot(gomock.Any()).Return(nil),
	)

	chain := NewFallback(zap.NewNop())
	chain.Add("first", first)
	chain.Add("second", second)

	if err := chain.Reboot(context.Background()); err != nil {
		t.Fatalf("Reboot() failed: %v", err)
	}
}

func TestFallback_AllFail(t *testing.T) {
	ctrl := gomock.NewController(t)
	first := mocks.NewMockPowerCommander(ctrl)
	second := mocks.NewMockPowerCommander(ctrl)

	errA := errors.New("a")
	errB := errors.New("b")
	first.EXPECT().Shutdown(gomock.Any()).Return(errA)
	second.EXPECT().Shutdown(gomock.Any()).Return(errB)

	chain := NewFallback(zap.NewNop())
	chain.Add("first", first)
	chain.Add("second", second)

	err := chain.Shutdown(context.Background())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("expected both errors combined, got %v", err)
	}
}

func TestFallback_Empty(t *testing.T) {
	chain := NewFallback(zap.NewNop())
	if err := chain.Shutdown(context.Background()); !errors.Is(err, ErrNoCommander) {
		t.Errorf("expected ErrNoCommander, got %v", err)
	}
}

func TestNewCommander(t *testing.T) {
	ctrl := gomock.NewController(t)
	volumio := mocks.NewMockPowerCommander(ctrl)

	pc, err := NewCommander(zap.NewNop(), CommandVolumio, volumio)
	if err != nil {
		t.Fatalf("NewCommander(volumio) failed: %v", err)
	}
	if pc != volumio {
		t.Error("expected the volumio commander itself")
	}

	if _, err := NewCommander(zap.NewNop(), CommandVolumio, nil); err == nil {
		t.Error("expected error without a volumio source")
	}
	if _, err := NewCommander(zap.NewNop(), "halt", nil); err == nil {
		t.Error("expected error for unknown command kind")
	}
}
