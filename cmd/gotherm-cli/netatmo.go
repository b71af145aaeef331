package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joshp123/gotherm/plugins/netatmo"
)

type homesResponse struct {
	Homes []netatmo.HomeView `json:"homes"`
}

func netatmoCmd(ctx context.Context, client *apiClient, args []string, jsonOutput bool) {
	out := outputMode{json: jsonOutput}
	if len(args) == 0 {
		netatmoUsage()
		os.Exit(2)
	}

	switch args[0] {
	case "homes", "list":
		homes := fetchHomes(ctx, client)
		if out.json {
			out.printJSON(homes)
			return
		}
		rows := [][]string{{"HOME", "ID", "ROOMS", "MODULES", "SCHEDULE"}}
		for _, home := range homes {
			rows = append(rows, []string{
				home.Name,
				home.ID,
				fmt.Sprintf("%d", len(home.Rooms)),
				fmt.Sprintf("%d", len(home.Modules)),
				selectedScheduleName(home),
			})
		}
		out.table(rows)
	case "home":
		if len(args) < 2 {
			fatal("home", fmt.Errorf("usage: gotherm-cli netatmo home <name-or-id>"))
		}
		home := resolveHome(ctx, client, args[1])
		if out.json {
			out.printJSON(home)
			return
		}
		printHome(out, home)
	case "thermmode":
		thermModeCmd(ctx, client, args[1:], out)
	case "schedule":
		scheduleCmd(ctx, client, args[1:], out)
	case "refresh":
		var resp homesResponse
		if err := client.postJSON(ctx, "/api/netatmo/refresh", nil, &resp); err != nil {
			fatal("netatmo refresh", err)
		}
		if out.json {
			out.printJSON(resp.Homes)
			return
		}
		fmt.Printf("ok: refreshed %d homes\n", len(resp.Homes))
	default:
		netatmoUsage()
		os.Exit(2)
	}
}

func thermModeCmd(ctx context.Context, client *apiClient, args []string, out outputMode) {
	flags := flag.NewFlagSet("thermmode", flag.ExitOnError)
	until := flags.Duration("until", 0, "Revert to the schedule after this duration (away and hg only)")
	scheduleName := flags.String("schedule", "", "Schedule to activate (mode=schedule only)")
	_ = flags.Parse(args)
	remaining := flags.Args()
	if len(remaining) < 2 {
		fatal("thermmode", fmt.Errorf("usage: gotherm-cli netatmo thermmode [--until <duration>] [--schedule <name-or-id>] <home> <mode>"))
	}

	home := resolveHome(ctx, client, remaining[0])
	mode := remaining[1]

	body := map[string]any{"mode": mode}
	if *until > 0 {
		body["end_time"] = time.Now().Add(*until).Unix()
	}
	if *scheduleName != "" {
		schedule, err := resolveSchedule(home, *scheduleName)
		if err != nil {
			fatal("thermmode", err)
		}
		body["schedule_id"] = schedule.ID
	}

	var resp map[string]any
	if err := client.postJSON(ctx, "/api/netatmo/homes/"+url.PathEscape(home.ID)+"/thermmode", body, &resp); err != nil {
		fatal("thermmode", err)
	}
	if out.json {
		out.printJSON(resp)
		return
	}
	fmt.Printf("ok: %s -> %s\n", normalizeName(home.Name), mode)
}

func scheduleCmd(ctx context.Context, client *apiClient, args []string, out outputMode) {
	if len(args) < 2 {
		fatal("schedule", fmt.Errorf("usage: gotherm-cli netatmo schedule <home> <name-or-id>"))
	}

	home := resolveHome(ctx, client, args[0])
	schedule, err := resolveSchedule(home, args[1])
	if err != nil {
		fatal("schedule", err)
	}

	var resp map[string]any
	if err := client.postJSON(ctx, "/api/netatmo/homes/"+url.PathEscape(home.ID)+"/schedule", map[string]string{"schedule_id": schedule.ID}, &resp); err != nil {
		fatal("schedule", err)
	}
	if out.json {
		out.printJSON(resp)
		return
	}
	fmt.Printf("ok: %s -> %s\n", normalizeName(home.Name), schedule.Name)
}

func fetchHomes(ctx context.Context, client *apiClient) []netatmo.HomeView {
	var resp homesResponse
	if err := client.getJSON(ctx, "/api/netatmo/homes", &resp); err != nil {
		fatal("netatmo homes", err)
	}
	return resp.Homes
}

func resolveHome(ctx context.Context, client *apiClient, input string) netatmo.HomeView {
	homes := fetchHomes(ctx, client)
	for _, home := range homes {
		if home.ID == input {
			return home
		}
	}

	options := make(map[string]string, len(homes))
	for _, home := range homes {
		options[home.Name] = home.ID
	}
	id, err := resolveNamedID("home", input, options)
	if err != nil {
		fatal("resolve home", err)
	}
	for _, home := range homes {
		if home.ID == id {
			return home
		}
	}
	fatal("resolve home", fmt.Errorf("home %q not found", input))
	return netatmo.HomeView{}
}

func resolveSchedule(home netatmo.HomeView, input string) (netatmo.ScheduleView, error) {
	for _, schedule := range home.Schedules {
		if schedule.ID == input {
			return schedule, nil
		}
	}

	options := make(map[string]string, len(home.Schedules))
	for _, schedule := range home.Schedules {
		options[schedule.Name] = schedule.ID
	}
	id, err := resolveNamedID("schedule", input, options)
	if err != nil {
		return netatmo.ScheduleView{}, err
	}
	for _, schedule := range home.Schedules {
		if schedule.ID == id {
			return schedule, nil
		}
	}
	return netatmo.ScheduleView{}, fmt.Errorf("schedule %q not found", input)
}

func selectedScheduleName(home netatmo.HomeView) string {
	for _, schedule := range home.Schedules {
		if schedule.Selected {
			return schedule.Name
		}
	}
	return "-"
}

func printHome(out outputMode, home netatmo.HomeView) {
	fmt.Printf("id: %s\n", home.ID)
	fmt.Printf("name: %s\n", home.Name)
	if home.FrostGuardTemperature != nil {
		fmt.Printf("frost_guard: %s\n", formatTemp(home.FrostGuardTemperature))
	}
	if home.AwayTemperature != nil {
		fmt.Printf("away: %s\n", formatTemp(home.AwayTemperature))
	}

	fmt.Println("schedules:")
	for _, schedule := range home.Schedules {
		marker := " "
		if schedule.Selected {
			marker = "*"
		}
		fmt.Printf("  %s %s (%s)\n", marker, schedule.Name, schedule.ID)
	}

	fmt.Println("rooms:")
	rows := [][]string{{"  ROOM", "TEMP", "SETPOINT", "MODE", "REACHABLE"}}
	for _, room := range home.Rooms {
		rows = append(rows, []string{
			"  " + room.Name,
			formatTemp(room.MeasuredTemperature),
			formatTemp(room.SetpointTemperature),
			stringOrDash(room.SetpointMode),
			fmt.Sprintf("%t", room.Reachable),
		})
	}
	out.table(rows)

	fmt.Println("modules:")
	rows = [][]string{{"  MODULE", "TYPE", "BATTERY", "REACHABLE"}}
	for _, module := range home.Modules {
		rows = append(rows, []string{
			"  " + module.Name,
			module.DeviceType,
			batteryLabel(module),
			fmt.Sprintf("%t", module.Reachable),
		})
	}
	out.table(rows)
}

func formatTemp(value *float64) string {
	if value == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f°C", *value)
}

func stringOrDash(value *string) string {
	if value == nil {
		return "-"
	}
	return *value
}

func batteryLabel(module netatmo.ModuleView) string {
	switch {
	case module.BatteryState != nil && module.BatteryLevel != nil:
		return fmt.Sprintf("%s (%dmV)", *module.BatteryState, *module.BatteryLevel)
	case module.BatteryState != nil:
		return *module.BatteryState
	case module.BatteryLevel != nil:
		return fmt.Sprintf("%dmV", *module.BatteryLevel)
	default:
		return "-"
	}
}

func netatmoUsage() {
	fmt.Println("gotherm-cli netatmo <command>")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  homes")
	fmt.Println("  home <name-or-id>")
	fmt.Println("  thermmode [--until <duration>] [--schedule <name-or-id>] <home> <mode>")
	fmt.Println("  schedule <home> <name-or-id>")
	fmt.Println("  refresh")
	fmt.Println("")
	fmt.Println("Modes: schedule, away, hg (frost guard)")
}
