package cache

import (
	"context"
	"os"
	"testing"
	"time"

	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// startRedis запускает Redis в Docker-контейнере и возвращает URL подключения.
func startRedis(t *testing.T) string {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "docker.io/redis:7-alpine")
	if err != nil {
		t.Fatalf("Не удалось запустить Redis контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить URL Redis: %v", err)
	}
	return url
}

func TestIntegration_SharedInvalidation(t *testing.T) {
	url := startRedis(t)
	ctx := context.Background()

	// Два инстанса сервиса с общим Redis
	first, err := NewRedis(url)
	if err != nil {
		t.Fatalf("NewRedis ошибка: %v", err)
	}
	second, err := NewRedis(url)
	if err != nil {
		t.Fatalf("NewRedis ошибка: %v", err)
	}
	storeA := NewStore(first, time.Second, testLogger())
	storeB := NewStore(second, time.Second, testLogger())
	defer storeA.Close()
	defer storeB.Close()

	storeA.Set(ctx, "user_by_file_id:f1", []byte("u1"), time.Minute)
	got, ok := storeB.Get(ctx, "user_by_file_id:f1")
	if !ok || string(got) != "u1" {
		t.Fatalf("второй инстанс: Get = %q, %v", got, ok)
	}

	storeB.Remove(ctx, "user_by_file_id:f1")
	if storeA.Exists(ctx, "user_by_file_id:f1") {
		t.Error("удаление на одном инстансе должно быть видно на другом")
	}

	if status, _ := storeA.CheckReady(); status != "ok" {
		t.Errorf("CheckReady = %s, ожидался ok", status)
	}
}
