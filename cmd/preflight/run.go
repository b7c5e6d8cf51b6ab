/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package preflight

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/rest"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	operatorerrors "github.com/dc-tec/ibgateway-operator/internal/errors"
	"github.com/dc-tec/ibgateway-operator/internal/kube"
	"github.com/dc-tec/ibgateway-operator/internal/logging"
	"github.com/dc-tec/ibgateway-operator/internal/validation"
)

const (
	flagEnvFile    = "env-file"
	flagSecretName = "secret-name"
	flagNamespace  = "namespace"
)

// Run executes the pre-flight credential provisioning procedure. It reads
// the Interactive Brokers credentials from a local dotenv file, validates
// them, and writes the gateway credential Secret to the cluster, verifying
// the write before reporting success.
// args are the command-line arguments (typically os.Args[2:] after the
// command name).
func Run(args []string) error {
	ctrl.SetLogger(zap.New(zap.UseDevMode(true)))

	cmd := newCommand()
	cmd.SetArgs(args)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return cmd.ExecuteContext(ctx)
}

func newCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Validate IB credentials locally and provision the gateway credential Secret",
		Long: `Preflight validates the Interactive Brokers credentials on the local
workstation before anything touches the cluster: all required keys must be
present in the dotenv file (or the process environment) or the command exits
without creating anything. Once validated, it connects to the control plane
via the active kubeconfig, creates or updates the credential Secret, and
reads it back to confirm every key landed.`,
		RunE:          runPreflight,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().String(flagEnvFile, ".env",
		"Path to the dotenv file holding TWS_USERID, TWS_PASSWORD and IB_ACCOUNT.")
	cmd.Flags().String(flagSecretName, "",
		"Name of the credential Secret to create or update. Must match the gateway's spec.credentialsSecretRef.name.")
	cmd.Flags().String(flagNamespace, "default",
		"Namespace the credential Secret is written to.")
	_ = cmd.MarkFlagRequired(flagSecretName)

	return cmd
}

func runPreflight(cmd *cobra.Command, _ []string) error {
	logger := ctrl.Log.WithName("preflight")

	envFile, _ := cmd.Flags().GetString(flagEnvFile)
	secretName, _ := cmd.Flags().GetString(flagSecretName)
	namespace, _ := cmd.Flags().GetString(flagNamespace)

	v := viper.New()
	v.AutomaticEnv()
	if err := readEnvFile(v, envFile, cmd.Flags().Changed(flagEnvFile)); err != nil {
		return err
	}

	creds, err := collectCredentials(v)
	if err != nil {
		return err
	}

	cfg, err := ctrl.GetConfig()
	if err != nil {
		return operatorerrors.WrapConnectivity(fmt.Errorf("failed to load kubeconfig: %w", err))
	}
	if err := checkControlPlane(cfg, logger); err != nil {
		return err
	}

	k8sClient, err := client.New(cfg, client.Options{})
	if err != nil {
		return operatorerrors.WrapConnectivity(fmt.Errorf("failed to create cluster client: %w", err))
	}

	return provisionCredentials(cmd.Context(), k8sClient, logger, secretName, namespace, creds)
}

// readEnvFile loads the dotenv file into v. A default-path file that does
// not exist is tolerated because the credentials may live in the process
// environment instead; an explicitly requested file must exist.
func readEnvFile(v *viper.Viper, path string, explicit bool) error {
	v.SetConfigFile(path)
	v.SetConfigType("dotenv")

	err := v.ReadInConfig()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		return nil
	default:
		return fmt.Errorf("failed to read environment file %s: %w", path, err)
	}
}

// collectCredentials resolves every required credential key and reports all
// missing ones at once so the file can be fixed in a single pass. Values
// are never logged.
func collectCredentials(v *viper.Viper) (map[string]string, error) {
	creds := make(map[string]string, len(validation.RequiredCredentialKeys))
	var missing []string
	for _, key := range validation.RequiredCredentialKeys {
		value := v.GetString(key)
		if value == "" {
			missing = append(missing, key)
			continue
		}
		creds[key] = value
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, operatorerrors.WrapValidation(
			fmt.Errorf("missing required credential keys: %v", missing))
	}
	return creds, nil
}

// checkControlPlane performs a cheap discovery round trip so kubeconfig and
// network problems surface as a connectivity failure before anything is
// written to the cluster.
func checkControlPlane(cfg *rest.Config, logger logr.Logger) error {
	disco, err := discovery.NewDiscoveryClientForConfig(cfg)
	if err != nil {
		return operatorerrors.WrapConnectivity(fmt.Errorf("failed to create discovery client: %w", err))
	}

	version, err := disco.ServerVersion()
	if err != nil {
		return operatorerrors.WrapConnectivity(fmt.Errorf("failed to reach the control plane: %w", err))
	}

	logger.Info("Connected to control plane", "serverVersion", version.GitVersion)
	return nil
}

// provisionCredentials writes the credential Secret and reads it back.
// Success is only reported after the read-back confirms every required key.
func provisionCredentials(ctx context.Context, c client.Client, logger logr.Logger, name, namespace string, creds map[string]string) error {
	secret := kube.BuildCredentialsSecret(name, namespace, creds)
	if err := kube.UpsertSecret(ctx, c, secret); err != nil {
		return fmt.Errorf("failed to provision credentials Secret: %w", err)
	}

	if err := kube.VerifySecretKeys(ctx, c, name, namespace, validation.RequiredCredentialKeys); err != nil {
		return fmt.Errorf("credential verification failed: %w", err)
	}

	logging.LogAuditEvent(logger, logging.EventCredentialsProvisioned, map[string]string{
		"namespace": namespace,
		"secret":    name,
		"keys":      strings.Join(validation.RequiredCredentialKeys, ","),
	})
	logger.Info("Credential secret provisioned and verified", "namespace", namespace, "secret", name)
	return nil
}
