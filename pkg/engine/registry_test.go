package engine

import (
	"reflect"
	"testing"
)

func TestProviderRegistry_Register(t *testing.T) {
	registry := NewProviderRegistry()

	if err := registry.Register("aws", newMockAdapter()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	adapter, err := registry.Get("aws")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if adapter == nil {
		t.Fatal("Expected non-nil adapter")
	}
}

func TestProviderRegistry_Register_Duplicate(t *testing.T) {
	registry := NewProviderRegistry()

	if err := registry.Register("aws", newMockAdapter()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := registry.Register("aws", newMockAdapter()); err == nil {
		t.Fatal("Expected error for duplicate id, got nil")
	}
}

func TestProviderRegistry_Register_EmptyID(t *testing.T) {
	registry := NewProviderRegistry()

	if err := registry.Register("", newMockAdapter()); err == nil {
		t.Fatal("Expected error for empty id, got nil")
	}
}

func TestProviderRegistry_Register_NilAdapter(t *testing.T) {
	registry := NewProviderRegistry()

	if err := registry.Register("aws", nil); err == nil {
		t.Fatal("Expected error for nil adapter, got nil")
	}
}

func TestProviderRegistry_Get_Unknown(t *testing.T) {
	registry := NewProviderRegistry()

	_, err := registry.Get("gcp")
	if !IsInvalidProvider(err) {
		t.Errorf("Expected invalid-provider error, got: %v", err)
	}
	if !IsPermanent(err) {
		t.Error("Expected unknown provider to classify as permanent")
	}
}

func TestProviderRegistry_IDs(t *testing.T) {
	registry := NewProviderRegistry()

	for _, id := range []string{"docker", "aws", "ssh"} {
		if err := registry.Register(id, newMockAdapter()); err != nil {
			t.Fatalf("Failed to register %s: %v", id, err)
		}
	}

	want := []string{"aws", "docker", "ssh"}
	if got := registry.IDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected sorted ids %v, got %v", want, got)
	}
}

func TestInstanceConfigRegistry_Register(t *testing.T) {
	registry := NewInstanceConfigRegistry()

	if err := registry.Register("compose", &stubPayloadMapper{}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	m, err := registry.Get("compose")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if m == nil {
		t.Fatal("Expected non-nil mapper")
	}
}

func TestInstanceConfigRegistry_Register_Duplicate(t *testing.T) {
	registry := NewInstanceConfigRegistry()

	if err := registry.Register("compose", &stubPayloadMapper{}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := registry.Register("compose", &stubPayloadMapper{}); err == nil {
		t.Fatal("Expected error for duplicate id, got nil")
	}
}

func TestInstanceConfigRegistry_Register_EmptyID(t *testing.T) {
	registry := NewInstanceConfigRegistry()

	if err := registry.Register("", &stubPayloadMapper{}); err == nil {
		t.Fatal("Expected error for empty id, got nil")
	}
}

func TestInstanceConfigRegistry_Register_NilMapper(t *testing.T) {
	registry := NewInstanceConfigRegistry()

	if err := registry.Register("compose", nil); err == nil {
		t.Fatal("Expected error for nil mapper, got nil")
	}
}

func TestInstanceConfigRegistry_Get_Unknown(t *testing.T) {
	registry := NewInstanceConfigRegistry()

	_, err := registry.Get("helm")
	if !IsInvalidInstanceConfig(err) {
		t.Errorf("Expected invalid-instance-config error, got: %v", err)
	}
	if !IsPermanent(err) {
		t.Error("Expected unknown instance config to classify as permanent")
	}
}

func TestInstanceConfigRegistry_IDs(t *testing.T) {
	registry := NewInstanceConfigRegistry()

	for _, id := range []string{"compose", "cloud-init"} {
		if err := registry.Register(id, &stubPayloadMapper{}); err != nil {
			t.Fatalf("Failed to register %s: %v", id, err)
		}
	}

	want := []string{"cloud-init", "compose"}
	if got := registry.IDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected sorted ids %v, got %v", want, got)
	}
}
