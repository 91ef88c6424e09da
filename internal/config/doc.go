/*
Package config implements the config validator (C11) and the loader that
feeds it: ${VAR}/${VAR:default} environment substitution over the raw
YAML bytes, decoding via spf13/viper's generic tree, and the full startup
validation rule set.
*/
package config
