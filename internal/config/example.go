package config

// ExampleYAML is the annotated config written by `keygate config init`.
const ExampleYAML = `# keygate configuration
server:
  listen: "127.0.0.1:8787"
  timeout_ms: 120000
  max_concurrent: 0        # 0 = unlimited
  enable_http2: false
  auth:
    api_key: "${KEYGATE_API_KEY}"

upstream:
  base_url: "https://open.bigmodel.cn/api/paas/v4"
  model: "glm-4.7-flash"
  timeout_ms: 60000
  max_tokens: 8192
  thinking: "disabled"

keys:
  # ZHIPU_API_KEY, ZHIPU_API_KEY_1, ZHIPU_API_KEY_2 ... until the first gap
  name: "ZHIPU_API_KEY"
  # optional comma-separated list of extra keys
  list_var: "ZHIPU_API_KEYS"
  env_file: ".env"
  strategy: "round_robin"  # round_robin, least_loaded, random
  rpm_limit: 0

gate:
  mode: "local"            # local, file_lock
  lock_dir: ".api_key_locks"
  poll_interval_ms: 200
  acquire_timeout_ms: 0    # 0 = wait forever

rotation:
  cooldown_ms: 30000
  retry_delay_ms: 500
  max_attempts: 0          # 0 = twice the number of keys
  max_retries: 3

health:
  circuit_breaker:
    failure_threshold: 5
    open_duration_ms: 60000
    half_open_requests: 1

logging:
  level: "info"
  format: "console"
  output: "stderr"
`
