package service_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/CZERTAINLY/Sortie/internal/model"
	"github.com/CZERTAINLY/Sortie/internal/service"
	"github.com/stretchr/testify/require"
)

func TestServiceManual(t *testing.T) {
	t.Parallel()
	var a atomic.Int32
	sup := service.NewSupervisor()
	cfg := model.Service{
		Mode:         model.ServiceModeManual,
		StopTimeout:  "1s",
		PollInterval: "10ms",
	}
	svc, err := service.NewService(t.Context(), cfg, sup, []service.Entry{
		{Name: "A", Routine: quick(&a)},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Do(t.Context()))
	require.Equal(t, 1, svc.Cycles())
	require.EqualValues(t, 1, a.Load())
	require.False(t, sup.IsRunning("A"))
}

func TestServiceTimer(t *testing.T) {
	t.Parallel()
	var a atomic.Int32
	sup := service.NewSupervisor()
	cfg := model.Service{
		Mode:         model.ServiceModeTimer,
		PollInterval: "10ms",
		Schedule:     &model.TimerSchedule{Duration: "1s"},
	}
	svc, err := service.NewService(t.Context(), cfg, sup, []service.Entry{
		{Name: "A", Routine: quick(&a)},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Do(ctx)
	}()

	require.Eventually(t, func() bool {
		return svc.Cycles() >= 1 && a.Load() >= 1
	}, 5*time.Second, 20*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("service did not stop")
	}
	require.False(t, sup.IsRunning("A"))
}

func TestNewService_Fail(t *testing.T) {
	t.Parallel()
	var testCases = []struct {
		scenario string
		given    model.Service
		then     string
	}{
		{
			scenario: "unknown mode",
			given:    model.Service{Mode: "daemon"},
			then:     `unsupported service mode "daemon"`,
		},
		{
			scenario: "timer without schedule",
			given:    model.Service{Mode: model.ServiceModeTimer},
			then:     "service.schedule is nil",
		},
		{
			scenario: "timer with empty schedule",
			given:    model.Service{Mode: model.ServiceModeTimer, Schedule: &model.TimerSchedule{}},
			then:     "both cron and duration are empty",
		},
		{
			scenario: "timer with bad cron",
			given:    model.Service{Mode: model.ServiceModeTimer, Schedule: &model.TimerSchedule{Cron: "every day"}},
			then:     "parsing service.schedule.cron",
		},
		{
			scenario: "bad stop timeout",
			given:    model.Service{StopTimeout: "5x"},
			then:     "parsing service.stop_timeout",
		},
		{
			scenario: "bad poll interval",
			given:    model.Service{PollInterval: "soon"},
			then:     "parsing service.poll_interval",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			_, err := service.NewService(t.Context(), tc.given, service.NewSupervisor(), nil)
			require.Error(t, err)
			require.ErrorContains(t, err, tc.then)
		})
	}
}
