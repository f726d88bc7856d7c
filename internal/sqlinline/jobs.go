package sqlinline

const QInsertGenerationJob = `--sql 2a742a9e-820a-479c-b4d1-991228902b23
insert into generation_jobs (
  id, job_type, prompt, model, provider, status, mode, quality_tier,
  parent_job_id, reference_media_path, video_brief_id, duration_seconds,
  params_json, provider_metadata, created_at, updated_at
)
values (
  $1::uuid, $2, $3, $4, $5, $6, $7, $8,
  nullif($9, '')::uuid, $10, $11, $12,
  $13::jsonb, $14::jsonb, $15, $16
);
`

const QSelectGenerationJob = `--sql 407ad185-35ed-4322-8a59-400c074b541a
select
  id::text, job_type, prompt, model, provider, status, mode, quality_tier,
  result_url, error_message, parent_job_id::text, reference_media_path, video_brief_id,
  duration_seconds, params_json, provider_metadata, quality_score, critic_report,
  critic_metadata, created_at, updated_at
from generation_jobs
where id = $1::uuid;
`

// QCompareAndSetGenerationJob writes the next state only while the stored
// status still matches $10.
const QCompareAndSetGenerationJob = `--sql 086f0082-e0d2-4edb-9b72-779ce7596082
update generation_jobs
set status = $2,
    model = $3,
    result_url = $4,
    error_message = $5,
    provider_metadata = $6::jsonb,
    quality_score = $7,
    critic_report = $8,
    critic_metadata = $9::jsonb,
    updated_at = $11
where id = $1::uuid
  and status = $10;
`

const QListStaleGenerationJobs = `--sql ade96223-7ca2-4099-b42c-4e84421c2002
select
  id::text, job_type, prompt, model, provider, status, mode, quality_tier,
  result_url, error_message, parent_job_id::text, reference_media_path, video_brief_id,
  duration_seconds, params_json, provider_metadata, quality_score, critic_report,
  critic_metadata, created_at, updated_at
from generation_jobs
where status = 'processing'
  and updated_at < $1
order by updated_at asc
limit $2;
`
