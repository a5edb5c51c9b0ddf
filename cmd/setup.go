package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"reelsmith/pkg/config"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).MarginBottom(1)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard for Reelsmith",
	Long:  `Check ffmpeg, create directories, and write .env and config.yaml.`,
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	fmt.Println(titleStyle.Render("🎬 Reelsmith Setup"))

	settings := setupSettings{
		PublicRoot: "./public",
		MusicDir:   "./assets/music",
		TTSServer:  "http://localhost:7860",
	}

	steps := []struct {
		name string
		fn   func(*setupSettings) error
	}{
		{"Checking tools", checkTools},
		{"Configuring environment", configureEnv},
		{"Writing config", writeConfigFile},
		{"Creating directories", createDirectories},
	}

	for _, step := range steps {
		if err := step.fn(&settings); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}

	printNextSteps()
	return nil
}

// setupSettings collects the wizard's answers for config.yaml.
type setupSettings struct {
	PublicRoot string
	MusicDir   string
	TTSServer  string
	Bucket     string
}

func checkTools(*setupSettings) error {
	if commandExists("ffmpeg") && commandExists("ffprobe") {
		fmt.Println(successStyle.Render("✓ Found ffmpeg and ffprobe"))
		return nil
	}

	var install bool
	err := huh.NewConfirm().
		Title("ffmpeg not found").
		Description("ffmpeg and ffprobe render every clip. Install them?").
		Affirmative("Yes").
		Negative("No").
		Value(&install).
		Run()
	if err != nil {
		return err
	}

	if !install {
		fmt.Println(warnStyle.Render("Rendering will fail until ffmpeg is on PATH (https://ffmpeg.org/download.html)"))
		return nil
	}

	return runWithSpinner("Installing ffmpeg", func() error {
		switch runtime.GOOS {
		case "darwin":
			return runSetupCmd("brew", "install", "ffmpeg")
		case "linux":
			return runSetupCmd("sh", "-c", "sudo apt-get install -y ffmpeg")
		default:
			return fmt.Errorf("unsupported OS: %s", runtime.GOOS)
		}
	})
}

func configureEnv(settings *setupSettings) error {
	if _, err := os.Stat(".env"); err == nil {
		var overwrite bool
		if err := huh.NewConfirm().
			Title("Found existing .env file").
			Description("Overwrite?").
			Value(&overwrite).
			Run(); err != nil {
			return err
		}
		if !overwrite {
			fmt.Println(infoStyle.Render("Kept existing .env"))
			return nil
		}
	}

	env := make(map[string]string)

	if err := configureGCP(env, settings); err != nil {
		return err
	}

	if err := configureRequiredKeys(env); err != nil {
		return err
	}

	if err := configureVoice(env, settings); err != nil {
		return err
	}

	return writeEnvFile(env)
}

func configureGCP(env map[string]string, settings *setupSettings) error {
	var setupGCP bool
	if err := huh.NewConfirm().
		Title("Setup Google Cloud?").
		Description("Used for Secret Manager keys, Vertex image generation and publishing to Cloud Storage").
		Value(&setupGCP).
		Run(); err != nil {
		return err
	}

	if !setupGCP {
		return nil
	}

	if !commandExists("gcloud") {
		fmt.Println(warnStyle.Render("gcloud CLI not found - install from https://cloud.google.com/sdk/docs/install"))
		return nil
	}

	project, err := getOrCreateGCPProject()
	if err != nil {
		fmt.Println(warnStyle.Render(fmt.Sprintf("GCP setup skipped: %v", err)))
		return nil
	}

	env["GOOGLE_CLOUD_PROJECT"] = project

	if err := enableGCPAPIs(project); err != nil {
		fmt.Println(warnStyle.Render(fmt.Sprintf("API enablement failed: %v", err)))
	}

	var bucket string
	if err := huh.NewInput().
		Title("Cloud Storage bucket").
		Description("Final videos are published here; leave empty to keep them local").
		Value(&bucket).
		Run(); err != nil {
		return err
	}
	settings.Bucket = strings.TrimSpace(bucket)

	return nil
}

func getOrCreateGCPProject() (string, error) {
	existing := getActiveProject()

	var choice string
	options := []huh.Option[string]{
		huh.NewOption("Create new project", "new"),
	}

	if existing != "" {
		options = append([]huh.Option[string]{
			huh.NewOption(fmt.Sprintf("Use current: %s", existing), existing),
		}, options...)
	}

	options = append(options, huh.NewOption("Enter project ID manually", "manual"))

	if err := huh.NewSelect[string]().
		Title("Google Cloud Project").
		Options(options...).
		Value(&choice).
		Run(); err != nil {
		return "", err
	}

	switch choice {
	case "new":
		return createGCPProject()
	case "manual":
		var projectID string
		if err := huh.NewInput().
			Title("Project ID").
			Value(&projectID).
			Run(); err != nil {
			return "", err
		}
		return projectID, nil
	default:
		return choice, nil
	}
}

func getActiveProject() string {
	out, err := exec.Command("gcloud", "config", "get-value", "project").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func createGCPProject() (string, error) {
	var projectID string
	if err := huh.NewInput().
		Title("New Project ID").
		Description("Must be globally unique, 6-30 chars, lowercase letters, digits, hyphens").
		Placeholder("reelsmith-12345").
		Value(&projectID).
		Validate(func(s string) error {
			if len(s) < 6 || len(s) > 30 {
				return fmt.Errorf("must be 6-30 characters")
			}
			return nil
		}).
		Run(); err != nil {
		return "", err
	}

	err := runWithSpinner("Creating project", func() error {
		return runSetupCmd("gcloud", "projects", "create", projectID)
	})
	if err != nil {
		return "", err
	}

	_ = runSetupCmd("gcloud", "config", "set", "project", projectID)

	return projectID, nil
}

func enableGCPAPIs(project string) error {
	apis := []string{
		"secretmanager.googleapis.com",
		"storage.googleapis.com",
		"aiplatform.googleapis.com",
	}

	return runWithSpinner("Enabling APIs", func() error {
		args := append([]string{"services", "enable"}, apis...)
		args = append(args, "--project", project)
		return runSetupCmd("gcloud", args...)
	})
}

func configureRequiredKeys(env map[string]string) error {
	var groqKey, geminiKey, viduKey string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("GROQ API Key").
				Description("Storyboards. https://console.groq.com/keys").
				Value(&groqKey).
				Validate(required("GROQ API Key")),
			huh.NewInput().
				Title("Gemini API Key").
				Description("Segment images; leave empty to use Vertex AI with the project above").
				Value(&geminiKey),
			huh.NewInput().
				Title("Vidu API Key").
				Description("Animated segments (optional). Also accepts sm://projects/<p>/secrets/<name>").
				EchoMode(huh.EchoModePassword).
				Value(&viduKey),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}

	env["GROQ_API_KEY"] = strings.TrimSpace(groqKey)
	env["GEMINI_API_KEY"] = strings.TrimSpace(geminiKey)
	env["VIDU_API_KEY"] = strings.TrimSpace(viduKey)
	return nil
}

func configureVoice(env map[string]string, settings *setupSettings) error {
	var server, token string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Voice server URL").
				Description("Gradio text-to-speech app").
				Value(&server).
				Placeholder(settings.TTSServer),
			huh.NewInput().
				Title("Voice server token").
				Description("Only for private Hugging Face Spaces (optional)").
				EchoMode(huh.EchoModePassword).
				Value(&token),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}

	if server = strings.TrimSpace(server); server != "" {
		settings.TTSServer = server
	}
	if token = strings.TrimSpace(token); token != "" {
		env["TTS_TOKEN"] = token
	}
	return nil
}

func writeEnvFile(env map[string]string) error {
	f, err := os.Create(".env")
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	order := []string{
		"GOOGLE_CLOUD_PROJECT",
		"GROQ_API_KEY",
		"GEMINI_API_KEY",
		"VIDU_API_KEY",
		"TTS_TOKEN",
	}

	for _, key := range order {
		if val, ok := env[key]; ok && val != "" {
			_, _ = fmt.Fprintf(f, "%s=%s\n", key, val)
		}
	}

	fmt.Println(successStyle.Render("✓ Created .env file"))
	return nil
}

func writeConfigFile(settings *setupSettings) error {
	if _, err := os.Stat(configPath); err == nil {
		fmt.Println(infoStyle.Render("Kept existing " + configPath))
		cfg, err := config.LoadFrom(rootCmd.Context(), configPath)
		if err == nil {
			settings.PublicRoot = cfg.Storage.PublicRoot
			settings.MusicDir = cfg.Music.Dir
		}
		return nil
	}

	var cfg config.Config
	cfg.Server.Addr = ":8080"
	cfg.Storage.PublicRoot = settings.PublicRoot
	cfg.Music.Dir = settings.MusicDir
	cfg.Music.Volume = 0.2
	cfg.TTS.ServerURL = settings.TTSServer
	cfg.GCS.Enabled = settings.Bucket != ""
	cfg.GCS.Bucket = settings.Bucket
	cfg.Pipeline.Parallelism = 4

	data, err := yaml.Marshal(configFile{
		Server:   cfg.Server,
		Storage:  cfg.Storage,
		Music:    cfg.Music,
		TTS:      cfg.TTS,
		GCS:      cfg.GCS,
		Pipeline: cfg.Pipeline,
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return err
	}

	fmt.Println(successStyle.Render("✓ Created " + configPath))
	return nil
}

// configFile is the subset of config.Config the wizard writes; everything
// else keeps its built-in default.
type configFile struct {
	Server   config.ServerConfig   `yaml:"server"`
	Storage  config.StorageConfig  `yaml:"storage"`
	Music    config.MusicConfig    `yaml:"music"`
	TTS      config.TTSConfig      `yaml:"tts"`
	GCS      config.GCSConfig      `yaml:"gcs"`
	Pipeline config.PipelineConfig `yaml:"pipeline"`
}

func createDirectories(settings *setupSettings) error {
	dirs := []string{settings.PublicRoot, settings.MusicDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	fmt.Println(successStyle.Render("✓ Created directories"))
	return nil
}

func printNextSteps() {
	fmt.Println()
	fmt.Println(titleStyle.Render("Next steps:"))
	fmt.Println("  1. Add music to: assets/music/ (or run: reelsmith music sync)")
	fmt.Println("  2. Start your Gradio voice server")
	fmt.Println("  3. Run: reelsmith render -t \"your topic\"")
	fmt.Println("     or: reelsmith serve")
}

func required(field string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func commandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func runSetupCmd(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %s", err, stderr.String())
	}
	return nil
}

func runWithSpinner(title string, fn func() error) error {
	var err error
	_ = spinner.New().
		Title(title).
		Action(func() { err = fn() }).
		Run()
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render("✓ " + title))
	return nil
}
