package config

// Example is an annotated configuration file.
const Example = `# Version of the local-compose configuration schema.
version: '1'

# Settings shared by all services. Each one can be overridden with an
# environment variable: LOCAL_COMPOSE_TIME_FORMAT, LOCAL_COMPOSE_USE_PREFIX,
# LOCAL_COMPOSE_KILL_WAIT, LOCAL_COMPOSE_LOG_FILE, LOCAL_COMPOSE_HISTORY.
global:
  # Go time layout of the line prefix.
  time-format: '15:04:05'
  # Prefix every line with time and service name.
  use-prefix: true
  # Seconds to wait after a graceful stop before killing services.
  kill-wait: 5
  # Keep a rotating copy of the output stream.
  log:
    file: local-compose.log
    max-size-mb: 10
    max-backups: 3
    max-age-days: 7
    compress: false
  # Record start, stop and restart events. Accepts sqlite:///path.db,
  # postgres://..., clickhouse://host:9000?table=t or opensearch://host:9200/index.
  # history: sqlite:///tmp/local-compose-history.db

# All services you want to run.
services:
  # First service with name 'web1'
  web1:
    # How to run the service: a command line or a list of arguments.
    run: ruby server.rb
    # Working directory, relative to the work dir; ~ is expanded.
    cwd: ~/work/microservices/billing
    # Color of the service output (see "local-compose colors").
    color: red
    # Environment variables passed to the service, ${VAR} is expanded.
    env:
      DB_USER: admin
      DB_PASS: 12345
    # Do not show the service output.
    quiet: false
    # Run the command through the system shell.
    shell: false
  migrate:
    run: [./bin/migrate, --wait-for-db]
    color: bright_cyan
    # Restart the job while it exits with a non-zero code.
    readiness:
      retry:
        # How many restarts; unbounded when omitted.
        attempts: 3
        # Seconds between attempts; 5 when omitted.
        wait: 2
`
