package tenant

import (
	"path/filepath"
	"testing"
)

func TestVaultCreate(t *testing.T) {
	tmpDir := t.TempDir()
	vaultPath := filepath.Join(tmpDir, "test.vault")
	vault := NewVault(vaultPath)

	t.Run("creates new vault", func(t *testing.T) {
		err := vault.Create("test-password-123")
		if err != nil {
			t.Fatalf("failed to create vault: %v", err)
		}

		if !vault.Exists() {
			t.Error("vault should exist after creation")
		}
	})

	t.Run("cannot create if already exists", func(t *testing.T) {
		err := vault.Create("different-password")
		if err == nil {
			t.Error("expected error when creating existing vault")
		}
	})
}

func TestVaultUnlock(t *testing.T) {
	tmpDir := t.TempDir()
	vaultPath := filepath.Join(tmpDir, "test.vault")
	vault := NewVault(vaultPath)

	if err := vault.Create("correct-password"); err != nil {
		t.Fatalf("setup: failed to create vault: %v", err)
	}
	vault.Lock()

	t.Run("unlocks with correct password", func(t *testing.T) {
		err := vault.Unlock("correct-password")
		if err != nil {
			t.Fatalf("failed to unlock: %v", err)
		}

		if !vault.IsUnlocked() {
			t.Error("vault should be unlocked")
		}
	})

	t.Run("fails with wrong password", func(t *testing.T) {
		vault.Lock()
		err := vault.Unlock("wrong-password")
		if err == nil {
			t.Error("expected error with wrong password")
		}

		if vault.IsUnlocked() {
			t.Error("vault should not be unlocked with wrong password")
		}
	})

	t.Run("fails if vault doesn't exist", func(t *testing.T) {
		nonExistent := NewVault(filepath.Join(tmpDir, "nonexistent.vault"))
		err := nonExistent.Unlock("any-password")
		if err == nil {
			t.Error("expected error when unlocking non-existent vault")
		}
	})
}

func TestVaultSetGet(t *testing.T) {
	tmpDir := t.TempDir()
	vaultPath := filepath.Join(tmpDir, "test.vault")
	vault := NewVault(vaultPath)

	if err := vault.Create("password"); err != nil {
		t.Fatalf("setup: failed to create vault: %v", err)
	}

	t.Run("stores and retrieves a secret", func(t *testing.T) {
		if err := vault.Set("OPENAI_API_KEY", "sk-test-123"); err != nil {
			t.Fatalf("failed to set: %v", err)
		}

		got, err := vault.Get("OPENAI_API_KEY")
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if got != "sk-test-123" {
			t.Errorf("got %q, want sk-test-123", got)
		}
	})

	t.Run("secrets survive lock and unlock", func(t *testing.T) {
		vault.Lock()
		if err := vault.Unlock("password"); err != nil {
			t.Fatalf("failed to unlock: %v", err)
		}

		got, err := vault.Get("OPENAI_API_KEY")
		if err != nil {
			t.Fatalf("failed to get after unlock: %v", err)
		}
		if got != "sk-test-123" {
			t.Errorf("got %q, want sk-test-123", got)
		}
	})

	t.Run("get fails when locked", func(t *testing.T) {
		vault.Lock()
		if _, err := vault.Get("OPENAI_API_KEY"); err == nil {
			t.Error("expected error when reading locked vault")
		}
	})

	t.Run("get returns empty for unknown entry", func(t *testing.T) {
		if err := vault.Unlock("password"); err != nil {
			t.Fatalf("failed to unlock: %v", err)
		}
		got, err := vault.Get("NO_SUCH_KEY")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "" {
			t.Errorf("got %q, want empty string", got)
		}
	})
}

func TestVaultDeleteAndList(t *testing.T) {
	tmpDir := t.TempDir()
	vault := NewVault(filepath.Join(tmpDir, "test.vault"))

	if err := vault.Create("password"); err != nil {
		t.Fatalf("setup: failed to create vault: %v", err)
	}
	vault.Set("key_a", "value-a")
	vault.Set("key_b", "value-b")

	t.Run("list hides the verification entry", func(t *testing.T) {
		names := vault.List()
		if len(names) != 2 {
			t.Fatalf("got %d names, want 2: %v", len(names), names)
		}
		for _, n := range names {
			if n != "key_a" && n != "key_b" {
				t.Errorf("unexpected entry %q", n)
			}
		}
	})

	t.Run("delete removes the entry", func(t *testing.T) {
		if err := vault.Delete("key_a"); err != nil {
			t.Fatalf("failed to delete: %v", err)
		}
		if got, _ := vault.Get("key_a"); got != "" {
			t.Errorf("got %q after delete, want empty string", got)
		}
		if names := vault.List(); len(names) != 1 {
			t.Errorf("got %d names after delete, want 1", len(names))
		}
	})
}
