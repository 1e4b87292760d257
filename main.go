package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/convoflow/convoflow/agent"
	"github.com/convoflow/convoflow/config"
	"github.com/convoflow/convoflow/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type cfg struct {
	config.Config
}
type cli struct {
	cfg cfg
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().String("redis-addr", "localhost:6379", "comma separated list of redis host:port")
	cmd.Flags().String("namespace", "convoflow", "namespace used in storage")
	cmd.Flags().Int("http-port", 8080, "http port for rest endpoints")
	cmd.Flags().String("log-level", "info", "log level")
	cmd.Flags().Int("idle-ttl", 86400, "seconds of inactivity before a session times out")
	cmd.Flags().Int("retry-attempts", 3, "default retry attempts for transient node failures")
	cmd.Flags().Int("delay-poll-millis", 1000, "delay queue poll interval in milliseconds")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	var err error

	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	viper.SetConfigFile(configFile)

	if err = viper.ReadInConfig(); err != nil {
		// it's ok if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	c.cfg.Config = config.Default()
	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.LogLevel = viper.GetString("log-level")
	c.cfg.ParseIdleTTL(viper.GetInt("idle-ttl"))
	c.cfg.EngineConfig.RetryAttempts = viper.GetInt("retry-attempts")
	if millis := viper.GetInt("delay-poll-millis"); millis > 0 {
		c.cfg.ExecutorConfig.DelayPollInterval = time.Duration(millis) * time.Millisecond
	}
	return nil
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	logger.Configure(c.cfg.LogLevel)
	agent, err := agent.New(c.cfg.Config, nil)
	if err != nil {
		panic(err)
	}
	err = agent.Start()
	if err != nil {
		panic(err)
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	return agent.Shutdown()
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:     "convoflow",
		PreRunE: cli.setupConfig,
		RunE:    cli.run,
	}

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
