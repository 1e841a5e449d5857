package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const orphanProfileTTL = 90 * time.Minute

// StartProfileSweeper remove periodicamente perfis temporários de browser
// que ficaram para trás depois de um crash do worker.
func StartProfileSweeper() {
	fmt.Println("[GC] Iniciando Profile Sweeper...")
	for {
		time.Sleep(15 * time.Minute)
		sweepOrphanProfiles(os.TempDir(), orphanProfileTTL)
	}
}

// sweepOrphanProfiles isola a lógica para os testes unitários.
func sweepOrphanProfiles(baseDir string, ttl time.Duration) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		fmt.Printf("[GC] Erro lendo diretório base %s: %v\n", baseDir, err)
		return
	}

	removedCount := 0
	now := time.Now()

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasPrefix(name, "hermes_profile_") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if now.Sub(info.ModTime()) > ttl {
			fullPath := filepath.Join(baseDir, name)
			if err := os.RemoveAll(fullPath); err != nil {
				fmt.Printf("[GC] Erro removendo perfil órfão %s: %v\n", fullPath, err)
			} else {
				removedCount++
			}
		}
	}

	if removedCount > 0 {
		fmt.Printf("[GC] 🧹 Sweeper removeu %d perfis órfãos do diretório temporário.\n", removedCount)
	}
}
