package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/iudanet/docsync/internal/client/connectivity"
	"github.com/iudanet/docsync/internal/client/iocli"
	"github.com/iudanet/docsync/internal/client/queue"
	"github.com/iudanet/docsync/internal/client/session"
	"github.com/iudanet/docsync/internal/client/storage"
	"github.com/iudanet/docsync/internal/client/sync"
	"github.com/iudanet/docsync/internal/config"
)

// Usage описание команд в формате docopt
const Usage = `docsync - offline-first record sync client.

Usage:
  docsync open <id> [options]
  docsync update <id> <field>... [options]
  docsync resolve <id> <field>... [options]
  docsync sync <id>... [options]
  docsync status [options]
  docsync queue [options]
  docsync drain [options]
  docsync run [<id>...] [options]
  docsync -h | --help
  docsync --version

Fields are key=value pairs: title=Loft, price=1250.5, tags=a,b,c

Options:
  -h --help                   Show this screen.
  --version                   Show version.
  -c --config=<path>          YAML config file.
  --db=<path>                 Local database path.
  --endpoint=<url>            Delivery endpoint (api_endpoint).
  --user=<id>                 User id recorded in modifiedBy.
  --passphrase-file=<path>    File with the storage passphrase.
  --ask-passphrase            Prompt for the storage passphrase.
  --log-level=<level>         Log level: debug, info, warn, error.
  --no-auto-sync              Disable the auto-sync timer in run.`

// Passphrases источники пароля шифрования хранилища
type Passphrases struct {
	FromConfig string // config файл или DOCSYNC_PASSPHRASE
	FromFile   string
	Prompt     bool
}

// Cli команды клиента поверх собранных компонентов
type Cli struct {
	io          iocli.IO
	sessions    *session.Manager
	queue       *queue.Queue
	syncService *sync.Service
	metadata    storage.MetadataStorage
	probe       connectivity.Probe
	config      *config.Config
}

func New(
	io iocli.IO,
	sessions *session.Manager,
	q *queue.Queue,
	syncService *sync.Service,
	metadata storage.MetadataStorage,
	probe connectivity.Probe,
	cfg *config.Config,
) *Cli {
	return &Cli{
		io:          io,
		sessions:    sessions,
		queue:       q,
		syncService: syncService,
		metadata:    metadata,
		probe:       probe,
		config:      cfg,
	}
}

// ReadPassphrase returns the storage passphrase with priority:
// 1. Config file or DOCSYNC_PASSPHRASE environment variable
// 2. File given by --passphrase-file
// 3. Interactive prompt, only with --ask-passphrase
// Empty result without error means the store is not encrypted.
func ReadPassphrase(io iocli.IO, sources Passphrases) (string, error) {
	if sources.FromConfig != "" {
		return sources.FromConfig, nil
	}

	if sources.FromFile != "" {
		content, err := os.ReadFile(sources.FromFile)
		if err != nil {
			return "", fmt.Errorf("failed to read passphrase file: %w", err)
		}
		// Убираем trailing newline/whitespace
		passphrase := strings.TrimSpace(string(content))
		if passphrase == "" {
			return "", ErrEmptyPassphrase
		}
		return passphrase, nil
	}

	if !sources.Prompt {
		return "", nil
	}

	passphrase, err := io.ReadPassword("Storage passphrase: ")
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	if passphrase == "" {
		return "", ErrEmptyPassphrase
	}
	return passphrase, nil
}
