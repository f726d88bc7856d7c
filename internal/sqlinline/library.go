package sqlinline

const QSelectLatestLibraryAsset = `--sql 69915319-9471-4190-b6b3-497fef703090
select id::text, storage_path, location, shot_type, duration_seconds, created_at
from video_assets_library
where ($1::text = '' or location = $1::text)
  and ($2::text = '' or shot_type = $2::text)
order by created_at desc
limit 1;
`

const QSelectVoiceProfile = `--sql 8e30efda-92be-4680-ab5a-af6149a50fe9
select id::text, name, reference_media_path
from voice_profiles
where id = $1::uuid;
`

const QListVoiceProfileSamples = `--sql 83f3d257-6c51-4929-9de1-3740ef1529df
select reference_media_path
from voice_profile_samples
where voice_profile_id = $1::uuid
order by position asc, created_at asc;
`
