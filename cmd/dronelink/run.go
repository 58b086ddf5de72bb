package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"DroneLink-Apps/internal/core/network"
	"DroneLink-Apps/internal/dronelink"
)

var droneCmd = &cobra.Command{
	Use:   "drone",
	Short: "Publish gyro readings and display received commands",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRole(dronelink.RoleDrone)
	},
}

var joystickCmd = &cobra.Command{
	Use:   "joystick",
	Short: "Display gyro readings and send commands typed on stdin",
	Long: `Start the joystick side. Type up, down, left or right followed by
enter to send a command to the drone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRole(dronelink.RoleJoystick)
	},
}

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Run drone and joystick in one process over an in-memory bus",
	RunE:  runLocal,
}

var (
	localEvery    time.Duration
	localDuration time.Duration
)

func init() {
	localCmd.Flags().DurationVar(&localEvery, "every", 2*time.Second, "interval between joystick commands")
	localCmd.Flags().DurationVar(&localDuration, "duration", 0, "stop after this long (0 runs until interrupted)")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runRole(role dronelink.Role) error {
	ctx, cancel := signalContext()
	defer cancel()

	link := dronelink.New(ctx, network.OpenLibp2p(cfg.Libp2pOptions()))
	defer link.Close()

	if err := link.StartSession(role); err != nil {
		return fmt.Errorf("failed to start %s session: %w", role, err)
	}
	if info, ok := link.Peers(); ok {
		log.Infof("Peer ID: %s", info.PeerID)
		for _, addr := range info.ListenAddrs {
			log.Infof("Listening on: %s", addr)
		}
	}

	if role == dronelink.RoleJoystick {
		go readCommands(ctx, link)
	}
	watch(ctx, link, role.String())
	log.Info("Shutting down...")
	return nil
}

func readCommands(ctx context.Context, link *dronelink.Coordinator) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		op, err := dronelink.ParseOperation(scanner.Text())
		if err != nil {
			fmt.Fprintln(os.Stderr, "commands: up, down, left, right")
			continue
		}
		sent, err := link.PublishOperation(op)
		if err != nil {
			log.Warnf("send %s: %v", op, err)
			continue
		}
		if !sent {
			log.Infof("previous command still in flight, %s dropped", op)
		}
	}
}

// watch prints state changes until ctx is done or the link shuts down.
func watch(ctx context.Context, link *dronelink.Coordinator, label string) {
	updates, cancel := link.Updates()
	defer cancel()
	var last dronelink.State
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			switch st.Role {
			case dronelink.RoleDrone:
				if st.Operation != last.Operation {
					fmt.Printf("[%s] operation: %s\n", label, st.Operation)
				}
			case dronelink.RoleJoystick:
				if st.Gyro != last.Gyro {
					fmt.Printf("[%s] gyro x=%.3f y=%.3f z=%.3f\n", label, st.Gyro.X, st.Gyro.Y, st.Gyro.Z)
				}
			}
			last = st
		}
	}
}

func runLocal(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	if localDuration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, localDuration)
		defer stop()
	}

	bus := network.NewMemoryPubSub()
	drone := dronelink.New(ctx, bus.Open)
	defer drone.Close()
	joystick := dronelink.New(ctx, bus.Open)
	defer joystick.Close()

	if err := joystick.StartSession(dronelink.RoleJoystick); err != nil {
		return err
	}
	if err := drone.StartSession(dronelink.RoleDrone); err != nil {
		return err
	}

	go watch(ctx, drone, "drone")
	go watch(ctx, joystick, "joystick")

	ticker := time.NewTicker(localEvery)
	defer ticker.Stop()
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			op := dronelink.Operations[i%len(dronelink.Operations)]
			if _, err := joystick.PublishOperation(op); err != nil {
				return err
			}
		}
	}
}
