package browser

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestProfileSweeperLogic(t *testing.T) {
	tempDir := t.TempDir()

	activeProfile := filepath.Join(tempDir, "hermes_profile_active123")
	orphanProfile := filepath.Join(tempDir, "hermes_profile_orphan456")
	unrelatedFolder := filepath.Join(tempDir, "some_other_folder")

	for _, dir := range []string{activeProfile, orphanProfile, unrelatedFolder} {
		if err := os.Mkdir(dir, 0755); err != nil {
			t.Fatalf("Erro criando diretório mock %s: %v", dir, err)
		}
	}

	now := time.Now()

	// Perfil ativo é recente (10 min)
	if err := os.Chtimes(activeProfile, now.Add(-10*time.Minute), now.Add(-10*time.Minute)); err != nil {
		t.Fatalf("Erro mockando tempo do active profile: %v", err)
	}
	// Pasta sem o prefixo é velha mas não pode ser tocada
	if err := os.Chtimes(unrelatedFolder, now.Add(-2*time.Hour), now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("Erro mockando tempo da unrelated folder: %v", err)
	}
	// Perfil órfão passou do TTL
	if err := os.Chtimes(orphanProfile, now.Add(-2*time.Hour), now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("Erro mockando tempo do orphan profile: %v", err)
	}

	sweepOrphanProfiles(tempDir, 90*time.Minute)

	if _, err := os.Stat(activeProfile); os.IsNotExist(err) {
		t.Errorf("O Sweeper apagou um perfil ativo (recente)!")
	}
	if _, err := os.Stat(unrelatedFolder); os.IsNotExist(err) {
		t.Errorf("O Sweeper apagou uma pasta que não tem o prefixo do hermes!")
	}
	if _, err := os.Stat(orphanProfile); !os.IsNotExist(err) {
		t.Errorf("O Sweeper não apagou o perfil órfão antigo!")
	}
}
