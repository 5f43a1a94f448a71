// Package mocks provides generated gomock implementations of the pipeline ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	worker := mocks.NewMockWorkerClient(ctrl)
//	worker.EXPECT().RunTask(gomock.Any(), gomock.Any()).Return(json.RawMessage(`{}`), nil)
//
// Stateful fakes of the repositories live in the memory subpackage.
package mocks

// WorkerClient: RunTask, Health
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=worker_client_mock.go github.com/target/mmk-pipeline/internal/core WorkerClient

// TickLocker: TryLock
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=tick_locker_mock.go github.com/target/mmk-pipeline/internal/core TickLocker
