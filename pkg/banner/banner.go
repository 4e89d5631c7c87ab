package banner

import (
	"fmt"

	"trellis/pkg/config"
)

const banner = `
████████╗██████╗ ███████╗██╗     ██╗     ██╗███████╗
╚══██╔══╝██╔══██╗██╔════╝██║     ██║     ██║██╔════╝
   ██║   ██████╔╝█████╗  ██║     ██║     ██║███████╗
   ██║   ██╔══██╗██╔══╝  ██║     ██║     ██║╚════██║
   ██║   ██║  ██║███████╗███████╗███████╗██║███████║
   ╚═╝   ╚═╝  ╚═╝╚══════╝╚══════╝╚══════╝╚═╝╚══════╝
`

// Print writes the startup banner with the resolved configuration summary.
func Print(cfg config.Config, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", cfg.Addr())
	fmt.Printf("DB Path:  %s\n", cfg.Storage.DBPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Page size: %d\n", cfg.Timeline.PageSize)
	if cfg.Maintenance.Enabled {
		cron := cfg.Maintenance.Cron
		if cron == "" {
			cron = "0 2 * * *"
		}
		fmt.Printf("Maintenance: enabled (cron=%s)\n", cron)
	} else {
		fmt.Println("Maintenance: disabled")
	}
	if len(cfg.Security.Admins) > 0 {
		fmt.Printf("Admins:   %d configured\n", len(cfg.Security.Admins))
	} else {
		fmt.Println("Admins:   NONE (join requests cannot be decided)")
	}

	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -H 'X-User-ID: u1' 'http://localhost%s/v1/conversations'\n", portSuffix(cfg))
	fmt.Printf("curl -H 'X-User-ID: u1' -X POST 'http://localhost%s/v1/conversations/<id>/messages' -d '{\"body\":\"hello\"}'\n", portSuffix(cfg))
	fmt.Println("\n== Logs: =================================================")
}

func portSuffix(cfg config.Config) string {
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf(":%d", port)
}
