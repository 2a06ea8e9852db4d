// Copyright 2016 Aleksandr Demakin. All rights reserved.

// busctl is a command line tool for inspecting and exercising shared memory
// topics: creating and destroying them, publishing messages and tailing the
// stream.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/nxgtw/go-shmbus/bus"
)

var (
	slotCount int
	slotSize  int
	timeout   time.Duration
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "busctl",
		Short:         "manage shared memory pub/sub topics",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	root.PersistentFlags().AddGoFlagSet(klogFlags)
	root.AddCommand(createCmd(), destroyCmd(), pubCmd(), subCmd(), statCmd())
	return root
}

func createCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <topic>",
		Short: "create a new topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := bus.NewTopic(args[0], os.O_CREATE|os.O_EXCL, 0666, slotCount, slotSize)
			if err != nil {
				return err
			}
			defer t.Close()
			fmt.Printf("created topic %q: %d slots of %d bytes\n", args[0], t.SlotCount(), t.SlotSize())
			return nil
		},
	}
	cmd.Flags().IntVar(&slotCount, "slots", 16, "number of ring slots")
	cmd.Flags().IntVar(&slotSize, "slot-size", 4096, "payload capacity of one slot in bytes")
	return cmd
}

func destroyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "destroy <topic>",
		Short: "remove a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return bus.DestroyTopic(args[0])
		},
	}
}

func pubCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pub <topic> <message>...",
		Short: "publish messages to a topic",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := bus.NewTopic(args[0], 0, 0666, 0, 0)
			if err != nil {
				return err
			}
			defer t.Close()
			p := bus.NewPublisher(t)
			for _, msg := range args[1:] {
				if err := p.Publish([]byte(msg)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func subCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sub <topic>",
		Short: "print messages published to a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := bus.NewTopic(args[0], 0, 0666, 0, 0)
			if err != nil {
				return err
			}
			defer t.Close()
			s := bus.NewSubscriber(t)
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			for {
				select {
				case <-stop:
					if s.Lost() != 0 {
						fmt.Fprintf(os.Stderr, "lost %d messages\n", s.Lost())
					}
					return nil
				default:
				}
				data, err := s.ReceiveTimeout(timeout)
				if err == bus.ErrTimeout {
					continue
				}
				if err != nil {
					return err
				}
				fmt.Printf("%s\n", data)
			}
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Second, "poll timeout between messages")
	return cmd
}

func statCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <topic>",
		Short: "print topic geometry and counters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := bus.NewTopic(args[0], 0, 0666, 0, 0)
			if err != nil {
				return err
			}
			defer t.Close()
			fmt.Printf("topic:     %s\n", t.Name())
			fmt.Printf("slots:     %d\n", t.SlotCount())
			fmt.Printf("slot size: %d\n", t.SlotSize())
			fmt.Printf("published: %d\n", t.Published())
			return nil
		},
	}
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "busctl: %v\n", err)
		os.Exit(1)
	}
}
