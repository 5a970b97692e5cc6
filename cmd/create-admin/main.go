// Command create-admin creates an administrator account in the tracking
// backend's database.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/garyjia/onecost/internal/application/service"
	"github.com/garyjia/onecost/internal/config"
	"github.com/garyjia/onecost/internal/container"
	"github.com/garyjia/onecost/pkg/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Erro: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a YAML config file")
	username := flag.String("username", "", "admin username (prompted when empty)")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.ValidateDatabase(); err != nil {
		return err
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{Level: "warn", Format: "console", OutputPath: "stderr"})
	if err != nil {
		return err
	}
	defer logger.Sync()

	reader := bufio.NewReader(os.Stdin)
	name := strings.TrimSpace(*username)
	if name == "" {
		fmt.Print("Nome de usuário: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read username: %w", err)
		}
		name = utils.SanitizeString(line)
	}
	if err := utils.ValidateUsername(name); err != nil {
		return err
	}

	password, err := readPassword(reader, "Senha: ")
	if err != nil {
		return err
	}
	if err := utils.ValidatePassword(password, service.MinPasswordLength); err != nil {
		return err
	}
	confirm, err := readPassword(reader, "Confirme a senha: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return errors.New("as senhas não conferem")
	}

	db, err := container.ProvideDatabase(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.DB.Close()

	repos := container.ProvideRepositories(db.DB, logger)
	// Register only hashes and stores, so the signing secret is not needed.
	auth := service.NewAuthService(service.AuthConfig{}, repos.User, utils.NewSugaredAdapter(logger))

	user, err := auth.Register(context.Background(), name, password, true)
	if errors.Is(err, service.ErrUserExists) {
		return fmt.Errorf("usuário %q já existe", name)
	}
	if err != nil {
		return err
	}

	logger.Info("Admin user created", zap.Int64("user_id", user.ID))
	fmt.Printf("Administrador %q criado (id %d)\n", user.Username, user.ID)
	return nil
}

// readPassword reads without echo when stdin is a terminal.
func readPassword(reader *bufio.Reader, prompt string) (string, error) {
	fmt.Print(prompt)
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	b, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}
