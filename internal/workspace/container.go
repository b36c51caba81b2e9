package workspace

import (
	"context"
	"fmt"
	"io"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// JobSpec describes one ephemeral worker invocation to submit as a
// Kubernetes Job.
type JobSpec struct {
	Name            string
	Namespace       string
	Image           string
	Env             map[string]string
	TTLAfterFinish  time.Duration
	SecretEnvRefs   map[string]SecretRef // env var name -> secret key reference
}

// SecretRef names a Kubernetes secret and key to project as an env var,
// so credentials never pass through plain JobSpec.Env.
type SecretRef struct {
	SecretName string
	Key        string
}

// ContainerJob submits and tracks one single-shot attempt as a
// Kubernetes batch Job with backoffLimit=0: retries are the
// scheduler's responsibility, never the orchestrator's.
type ContainerJob struct {
	clientset kubernetes.Interface
}

// NewContainerJob wraps a client-go clientset.
func NewContainerJob(clientset kubernetes.Interface) *ContainerJob {
	return &ContainerJob{clientset: clientset}
}

// Submit creates the Job resource and returns immediately; callers poll
// with Wait.
func (c *ContainerJob) Submit(ctx context.Context, spec JobSpec) error {
	backoffLimit := int32(0)
	ttl := int32(spec.TTLAfterFinish.Seconds())

	env := make([]corev1.EnvVar, 0, len(spec.Env)+len(spec.SecretEnvRefs))
	for k, v := range spec.Env {
		env = append(env, corev1.EnvVar{Name: k, Value: v})
	}
	for k, ref := range spec.SecretEnvRefs {
		env = append(env, corev1.EnvVar{
			Name: k,
			ValueFrom: &corev1.EnvVarSource{
				SecretKeyRef: &corev1.SecretKeySelector{
					LocalObjectReference: corev1.LocalObjectReference{Name: ref.SecretName},
					Key:                  ref.Key,
				},
			},
		})
	}

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: spec.Name, Namespace: spec.Namespace},
		Spec: batchv1.JobSpec{
			BackoffLimit:            &backoffLimit,
			TTLSecondsAfterFinished: &ttl,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"app": "leviathan-worker", "job-name": spec.Name}},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{{
						Name:  "worker",
						Image: spec.Image,
						Env:   env,
					}},
				},
			},
		},
	}

	if _, err := c.clientset.BatchV1().Jobs(spec.Namespace).Create(ctx, job, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("submit worker job %s/%s: %w", spec.Namespace, spec.Name, err)
	}
	return nil
}

// Wait polls job status until it reaches a terminal state (succeeded or
// failed) or ctx is done.
func (c *ContainerJob) Wait(ctx context.Context, namespace, name string, pollInterval time.Duration) (succeeded bool, err error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		job, err := c.clientset.BatchV1().Jobs(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return false, fmt.Errorf("get worker job %s/%s: %w", namespace, name, err)
		}
		if job.Status.Succeeded > 0 {
			return true, nil
		}
		if job.Status.Failed > 0 {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

// PodLogs collects the log stream of the job's pod, used as an
// artifact when the job isolation mode is in effect.
func (c *ContainerJob) PodLogs(ctx context.Context, namespace, jobName string) (string, error) {
	pods, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: "job-name=" + jobName,
	})
	if err != nil {
		return "", fmt.Errorf("list pods for job %s: %w", jobName, err)
	}
	if len(pods.Items) == 0 {
		return "", nil
	}

	req := c.clientset.CoreV1().Pods(namespace).GetLogs(pods.Items[0].Name, &corev1.PodLogOptions{})
	stream, err := req.Stream(ctx)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("stream pod logs for %s: %w", pods.Items[0].Name, err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return "", fmt.Errorf("read pod logs for %s: %w", pods.Items[0].Name, err)
	}
	return string(data), nil
}

// Cleanup deletes the Job (and, via propagation policy, its pods).
func (c *ContainerJob) Cleanup(ctx context.Context, namespace, name string) error {
	policy := metav1.DeletePropagationBackground
	err := c.clientset.BatchV1().Jobs(namespace).Delete(ctx, name, metav1.DeleteOptions{PropagationPolicy: &policy})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("delete worker job %s/%s: %w", namespace, name, err)
	}
	return nil
}
